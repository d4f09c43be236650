package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/chiyaghar/teashop/internal/broadcast"
	"github.com/chiyaghar/teashop/internal/httpmw"
	"github.com/chiyaghar/teashop/internal/orders"
	"github.com/chiyaghar/teashop/internal/telemetry"
)

type storeStatus interface {
	Kind() string
	Ready() bool
}

type router struct {
	orders  *orders.Handler
	streams *broadcast.Handler
	staff   func(http.Handler) http.Handler
	store   storeStatus
	metrics http.Handler
	origins []string
	logger  *slog.Logger
}

func (rt router) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/orders", telemetry.WithHTTPRoute(rt.orders.HandleCreate))
	mux.HandleFunc("GET /api/orders/{id}", telemetry.WithHTTPRoute(rt.orders.HandleGet))
	mux.HandleFunc("GET /api/orders/{id}/events", telemetry.WithHTTPRoute(rt.streams.HandleEvents))
	mux.HandleFunc("GET /api/orders/{id}/ws", telemetry.WithHTTPRoute(rt.streams.HandleWebSocket))

	mux.Handle("GET /api/orders", rt.staff(telemetry.WithHTTPRoute(rt.orders.HandleList)))
	mux.Handle("PATCH /api/orders/{id}/status", rt.staff(telemetry.WithHTTPRoute(rt.orders.HandleUpdateStatus)))
	mux.Handle("POST /api/orders/{id}/payment", rt.staff(telemetry.WithHTTPRoute(rt.orders.HandleMarkPaid)))

	mux.HandleFunc("GET /healthz", rt.health)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics)
	}

	return httpmw.Wrap(mux,
		httpmw.Recovery(rt.logger),
		httpmw.RequestID(),
		httpmw.CORS(rt.origins),
	)
}

type healthResponse struct {
	Status     string `json:"status"`
	Store      string `json:"store"`
	StoreReady bool   `json:"storeReady"`
}

// health reports ok even without a store: running on the ledger alone is a
// degraded mode, not an outage.
func (rt router) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:     "ok",
		Store:      rt.store.Kind(),
		StoreReady: rt.store.Ready(),
	})
}
