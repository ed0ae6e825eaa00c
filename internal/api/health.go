package api

import "net/http"

// Статусы /healthz.
const (
	statusOK           = "ok"
	statusShuttingDown = "shutting_down"
	statusDisconnected = "broker_disconnected"
	statusRelayStopped = "relay_stopped"
)

// HealthResponse — тело ответа /healthz.
type HealthResponse struct {
	Status       string `json:"status"`
	Broker       bool   `json:"broker_connected"`
	ShuttingDown bool   `json:"shutting_down"`
	Relay        bool   `json:"relay_running"`
}

// Healthz отвечает 503, пока идёт shutdown, брокер не подключён
// или relay перестал получать доставки.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: statusOK}

	if h.shutdown != nil && h.shutdown.IsShuttingDown() {
		resp.ShuttingDown = true
	}
	if h.broker != nil {
		resp.Broker = h.broker.IsConnected()
	}
	if h.relay != nil {
		resp.Relay = h.relay.Running()
	}

	switch {
	case resp.ShuttingDown:
		resp.Status = statusShuttingDown
	case h.broker != nil && !resp.Broker:
		resp.Status = statusDisconnected
	case h.relay != nil && !resp.Relay:
		resp.Status = statusRelayStopped
	}

	if resp.Status != statusOK {
		JSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	JSON(w, http.StatusOK, resp)
}
