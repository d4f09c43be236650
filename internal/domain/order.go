package domain

import (
	"maps"
	"time"
)

type Status string

const (
	StatusReceived  Status = "received"
	StatusBrewing   Status = "brewing"
	StatusReady     Status = "ready"
	StatusPaid      Status = "paid"
	StatusCompleted Status = "completed"
)

// DefaultPaymentMethod is used when a create request does not name one.
const DefaultPaymentMethod = "cash"

var statuses = []Status{StatusReceived, StatusBrewing, StatusReady, StatusPaid, StatusCompleted}

// Statuses returns the lifecycle states in their conventional order.
func Statuses() []Status {
	out := make([]Status, len(statuses))
	copy(out, statuses)
	return out
}

// ParseStatus reports whether s names one of the lifecycle states.
func ParseStatus(s string) (Status, bool) {
	for _, st := range statuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

type Item struct {
	Name     string  `json:"name" bson:"name" validate:"required"`
	Qty      float64 `json:"qty" bson:"qty" validate:"finite,gt=0"`
	PriceNPR float64 `json:"priceNpr" bson:"priceNpr" validate:"finite,gte=0"`
}

type Customer struct {
	Name    string `json:"name,omitempty" bson:"name,omitempty"`
	Phone   string `json:"phone,omitempty" bson:"phone,omitempty"`
	Email   string `json:"email,omitempty" bson:"email,omitempty"`
	Address string `json:"address,omitempty" bson:"address,omitempty"`
	Note    string `json:"note,omitempty" bson:"note,omitempty"`
}

type Order struct {
	ID            string    `json:"id" bson:"id"`
	Items         []Item    `json:"items" bson:"items"`
	Customer      *Customer `json:"customer,omitempty" bson:"customer,omitempty"`
	PaymentMethod string    `json:"paymentMethod" bson:"paymentMethod"`
	TotalNPR      float64   `json:"totalNpr" bson:"totalNpr"`
	Status        Status    `json:"status" bson:"status"`
	CreatedAt     int64     `json:"createdAt" bson:"createdAt"`
	PaidAt        *int64    `json:"paidAt,omitempty" bson:"paidAt,omitempty"`
	Payment       *Payment  `json:"payment,omitempty" bson:"payment,omitempty"`
}

// Phone returns the customer's phone number, or "" when none was given.
func (o *Order) Phone() string {
	if o.Customer == nil {
		return ""
	}
	return o.Customer.Phone
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	if o.Customer != nil {
		cust := *o.Customer
		c.Customer = &cust
	}
	if o.PaidAt != nil {
		at := *o.PaidAt
		c.PaidAt = &at
	}
	if o.Payment != nil {
		p := o.Payment.clone()
		c.Payment = &p
	}
	return &c
}

// Total sums qty × priceNpr over items.
func Total(items []Item) float64 {
	var total float64
	for _, it := range items {
		total += it.Qty * it.PriceNPR
	}
	return total
}

// Millis converts t to epoch milliseconds, the unit of every order timestamp.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

type Payment struct {
	Provider    string         `json:"provider,omitempty" bson:"provider,omitempty"`
	ReferenceID string         `json:"refId,omitempty" bson:"refId,omitempty"`
	Verified    *bool          `json:"verified,omitempty" bson:"verified,omitempty"`
	Raw         map[string]any `json:"raw,omitempty" bson:"raw,omitempty"`
}

// Merge overlays the fields set in update onto p. Empty strings and a nil
// Verified leave the existing values in place; Raw keys are merged with the
// update winning on conflict.
func (p Payment) Merge(update Payment) Payment {
	out := p.clone()
	if update.Provider != "" {
		out.Provider = update.Provider
	}
	if update.ReferenceID != "" {
		out.ReferenceID = update.ReferenceID
	}
	if update.Verified != nil {
		v := *update.Verified
		out.Verified = &v
	}
	if len(update.Raw) > 0 {
		if out.Raw == nil {
			out.Raw = make(map[string]any, len(update.Raw))
		}
		maps.Copy(out.Raw, update.Raw)
	}
	return out
}

func (p Payment) clone() Payment {
	out := p
	if p.Verified != nil {
		v := *p.Verified
		out.Verified = &v
	}
	if p.Raw != nil {
		out.Raw = maps.Clone(p.Raw)
	}
	return out
}
