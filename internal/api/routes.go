package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes регистрирует все маршруты служебного API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	mux.Handle("GET /healthz", chain(http.HandlerFunc(h.Healthz)))

	// /metrics не логируем: его опрашивают каждые несколько секунд.
	mux.Handle("GET /metrics", Recovery(h.logger)(promhttp.Handler()))
}
