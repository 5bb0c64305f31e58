package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fleetbeam/tracker-hub/internal/hub"
	"github.com/fleetbeam/tracker-hub/internal/registry"
	"github.com/fleetbeam/tracker-hub/pkg/log"
)

// HTTPHandler exposes the read-only operational surface: a liveness
// snapshot of the connection registry, the bus rooms served by this
// hub, and the fleet view mirrored in the external registry.
type HTTPHandler struct {
	hub      *hub.Hub
	registry registry.Registry
}

func NewHTTPHandler(h *hub.Hub, reg registry.Registry) *HTTPHandler {
	return &HTTPHandler{hub: h, registry: reg}
}

// HealthResponse is the liveness report for external monitoring.
type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Drivers     int    `json:"drivers"`
	Students    int    `json:"students"`
	Admins      int    `json:"admins"`
}

// HealthCheck handles GET /health
func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	stats := h.hub.Stats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResponse{
		Status:      "ok",
		Connections: stats.Connections,
		Drivers:     stats.Drivers,
		Students:    stats.Students,
		Admins:      stats.Admins,
	})
}

// ActiveBusesResponse lists bus rooms with at least one subscriber.
type ActiveBusesResponse struct {
	Buses []hub.BusStat `json:"buses"`
	Total int           `json:"total"`
}

// GetActiveBuses handles GET /api/v1/buses
func (h *HTTPHandler) GetActiveBuses(w http.ResponseWriter, r *http.Request) {
	buses := h.hub.ActiveBuses()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ActiveBusesResponse{
		Buses: buses,
		Total: len(buses),
	})
}

// FleetBusesResponse lists every bus currently registered as active,
// including buses served by other hub instances.
type FleetBusesResponse struct {
	Buses []string `json:"buses"`
	Total int      `json:"total"`
}

// GetFleetBuses handles GET /api/v1/fleet/buses
func (h *HTTPHandler) GetFleetBuses(w http.ResponseWriter, r *http.Request) {
	buses, err := h.registry.ActiveBuses(r.Context())
	if err != nil {
		l := log.Ctx(r.Context())
		l.Error().Err(err).Msg("fleet registry lookup failed")
		http.Error(w, "registry unavailable", http.StatusServiceUnavailable)
		return
	}
	if buses == nil {
		buses = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(FleetBusesResponse{
		Buses: buses,
		Total: len(buses),
	})
}

func (h *HTTPHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/buses", h.GetActiveBuses).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/fleet/buses", h.GetFleetBuses).Methods(http.MethodGet)
}
