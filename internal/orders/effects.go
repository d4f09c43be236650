package orders

import "github.com/chiyaghar/teashop/internal/domain"

// Outcome records what happened to one best-effort side effect.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeSuccess
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Effects reports the side effects of a lifecycle operation. Notify is
// OutcomeSuccess once a dispatch has been started; delivery itself is not
// awaited.
type Effects struct {
	Store   Outcome
	Notify  Outcome
	Publish Outcome
}

type CreateResult struct {
	Order   *domain.Order
	Effects Effects
}

type StatusResult struct {
	Order   *domain.Order
	Effects Effects
}

type PaidResult struct {
	Order   *domain.Order
	Effects Effects
}
