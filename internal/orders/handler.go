package orders

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"

	"github.com/chiyaghar/teashop/internal/domain"
)

type Handler struct {
	manager    *Manager
	production bool
	logger     *slog.Logger
}

func NewHandler(manager *Manager, production bool, logger *slog.Logger) *Handler {
	return &Handler{
		manager:    manager,
		production: production,
		logger:     logger,
	}
}

type createOrderRequest struct {
	Items         []looseItem      `json:"items"`
	Customer      *domain.Customer `json:"customer"`
	PaymentMethod string           `json:"paymentMethod"`
}

type createOrderResponse struct {
	ID       string        `json:"id"`
	TotalNPR float64       `json:"totalNpr"`
	Status   domain.Status `json:"status"`
	Items    []domain.Item `json:"items"`
}

// looseItem accepts the shapes storefront clients actually send: numbers as
// strings and names as numbers. Unusable values become NaN or "" so that
// validation rejects them.
type looseItem struct {
	Name     json.RawMessage `json:"name"`
	Qty      json.RawMessage `json:"qty"`
	PriceNPR json.RawMessage `json:"priceNpr"`
}

func (it looseItem) item() domain.Item {
	return domain.Item{
		Name:     looseString(it.Name),
		Qty:      looseNumber(it.Qty),
		PriceNPR: looseNumber(it.PriceNPR),
	}
}

func looseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

func looseNumber(raw json.RawMessage) float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return math.NaN()
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
	}
	return math.NaN()
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	items := make([]domain.Item, len(req.Items))
	for i, it := range req.Items {
		items[i] = it.item()
	}

	res, err := h.manager.Create(r.Context(), CreateRequest{
		Items:         items,
		Customer:      req.Customer,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
	})
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			h.writeError(w, http.StatusBadRequest, verr.Message, nil)
			return
		}
		h.logger.Error("failed to create order", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to create order", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, createOrderResponse{
		ID:       res.Order.ID,
		TotalNPR: res.Order.TotalNPR,
		Status:   res.Order.Status,
		Items:    res.Order.Items,
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "Missing order id", nil)
		return
	}

	order, err := h.manager.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "Not found", nil)
		return
	}
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "Failed to load order", err)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	orders := h.manager.ListRecent(r.Context(), limit)
	if orders == nil {
		orders = []domain.Order{}
	}

	h.logger.Info("orders listed", "count", len(orders))
	h.writeJSON(w, http.StatusOK, orders)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type updateStatusResponse struct {
	ID     string        `json:"id"`
	Status domain.Status `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "Missing order id", nil)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.manager.UpdateStatus(r.Context(), id, req.Status)
	switch {
	case errors.Is(err, ErrInvalidStatus):
		h.writeError(w, http.StatusBadRequest, "Invalid status", nil)
		return
	case errors.Is(err, ErrNotFound):
		h.writeError(w, http.StatusNotFound, "Not found", nil)
		return
	case err != nil:
		h.logger.Error("failed to update order status", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "Failed to update status", err)
		return
	}

	h.writeJSON(w, http.StatusOK, updateStatusResponse{ID: res.Order.ID, Status: res.Order.Status})
}

type markPaidResponse struct {
	ID     string        `json:"id"`
	Status domain.Status `json:"status"`
	PaidAt *int64        `json:"paidAt"`
}

// HandleMarkPaid is the callback used by payment gateways once they have
// verified a payment.
func (h *Handler) HandleMarkPaid(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "Missing order id", nil)
		return
	}

	var payment domain.Payment
	if err := json.NewDecoder(r.Body).Decode(&payment); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, ok := h.manager.MarkPaid(r.Context(), id, payment)
	if !ok {
		h.writeError(w, http.StatusNotFound, "Not found", nil)
		return
	}

	h.writeJSON(w, http.StatusOK, markPaidResponse{ID: res.Order.ID, Status: res.Order.Status, PaidAt: res.Order.PaidAt})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// writeError attaches cause as detail on server errors outside production.
func (h *Handler) writeError(w http.ResponseWriter, status int, message string, cause error) {
	resp := errorResponse{Message: message}
	if cause != nil && status >= http.StatusInternalServerError && !h.production {
		resp.Detail = cause.Error()
	}
	h.writeJSON(w, status, resp)
}
