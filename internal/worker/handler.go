package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/chiyaghar/teashop/internal/domain"
)

type Sender interface {
	SendSMS(ctx context.Context, to, message string) bool
}

// NotificationHandler delivers queued SMS requests. Delivery failures are
// logged and the message is still committed: texts are best-effort and a
// retry could reach the customer late or twice.
type NotificationHandler struct {
	sender Sender
	logger *slog.Logger
}

func NewNotificationHandler(sender Sender, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		sender: sender,
		logger: logger,
	}
}

func (h *NotificationHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.NotificationRequested
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Error("skipping malformed notification request", "error", err)
		return nil
	}

	if event.To == "" || event.Message == "" {
		h.logger.Warn("skipping incomplete notification request", "order_id", event.OrderID, "kind", event.Kind)
		return nil
	}

	h.logger.Info("processing notification request", "order_id", event.OrderID, "kind", event.Kind)

	if !h.sender.SendSMS(ctx, event.To, event.Message) {
		h.logger.Warn("notification not delivered", "order_id", event.OrderID, "kind", event.Kind)
		return nil
	}

	h.logger.Info("notification delivered", "order_id", event.OrderID, "kind", event.Kind)
	return nil
}
