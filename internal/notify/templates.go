package notify

import (
	"fmt"
	"math"
	"strconv"

	"github.com/chiyaghar/teashop/internal/domain"
)

func ReceivedMessage(o *domain.Order) string {
	return fmt.Sprintf("Namaste! We received your tea order %s. Total: NPR %s. We will text you when it is ready.",
		o.ID, FormatNPR(o.TotalNPR))
}

func ReadyMessage(o *domain.Order) string {
	return fmt.Sprintf("Your order %s is ready for pickup. Dhanyabad!", o.ID)
}

func PaidMessage(o *domain.Order) string {
	return fmt.Sprintf("Payment of NPR %s received for order %s. Thank you!", FormatNPR(o.TotalNPR), o.ID)
}

// FormatNPR renders whole rupee amounts without decimals and anything else
// with two.
func FormatNPR(v float64) string {
	if v == math.Trunc(v) && !math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
