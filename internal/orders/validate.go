package orders

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"

	"github.com/chiyaghar/teashop/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	}); err != nil {
		panic(err)
	}
	return v
}

// normalizeItems trims names and validates every item. The returned slice
// never aliases the input.
func normalizeItems(items []domain.Item) ([]domain.Item, error) {
	if len(items) == 0 {
		return nil, &ValidationError{Index: -1, Message: "Items are required"}
	}

	out := make([]domain.Item, len(items))
	for i, it := range items {
		it.Name = strings.TrimSpace(it.Name)
		if err := validate.Struct(it); err != nil {
			return nil, &ValidationError{Index: i, Message: itemMessage(i, err)}
		}
		out[i] = it
	}
	return out, nil
}

func itemMessage(i int, err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Sprintf("Invalid item at position %d", i)
	}

	fe := fieldErrs[0]
	switch fe.Field() {
	case "Name":
		return fmt.Sprintf("Item %d: name is required", i)
	case "Qty":
		return fmt.Sprintf("Item %d: qty must be a positive number", i)
	case "PriceNPR":
		return fmt.Sprintf("Item %d: priceNpr must be a non-negative number", i)
	default:
		return fmt.Sprintf("Item %d: invalid %s", i, strings.ToLower(fe.Field()))
	}
}
