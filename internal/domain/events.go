package domain

import "time"

// StatusChanged is relayed between API instances. Origin names the
// instance that accepted the change.
type StatusChanged struct {
	OrderID   string    `json:"order_id"`
	Status    Status    `json:"status"`
	Origin    string    `json:"origin,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type NotificationKind string

const (
	NotificationReceived NotificationKind = "order_received"
	NotificationReady    NotificationKind = "order_ready"
	NotificationPaid     NotificationKind = "payment_received"
)

type NotificationRequested struct {
	OrderID   string           `json:"order_id"`
	Kind      NotificationKind `json:"kind"`
	To        string           `json:"to"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
}
