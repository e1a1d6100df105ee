package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bustracker-data/internal/routing"
	"github.com/bustracker-data/internal/topology"
)

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type resolveRequest struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

type legPayload struct {
	Service   string `json:"service"`
	Direction int    `json:"direction"`
	From      string `json:"from"`
	To        string `json:"to"`
	Stops     int    `json:"stops"`
}

type routePayload struct {
	Transfer         bool         `json:"transfer,omitempty"`
	Service          string       `json:"service,omitempty"`
	Direction        int          `json:"direction,omitempty"`
	Stops            int          `json:"stops,omitempty"`
	Legs             []legPayload `json:"legs,omitempty"`
	EstimatedTimeMin float64      `json:"estimated_time_min"`
}

type resolveResponse struct {
	Origin          string         `json:"origin"`
	Destination     string         `json:"destination"`
	Routes          []routePayload `json:"routes"`
	LastRefreshedAt time.Time      `json:"lastRefreshedAt"`
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Origin == "" || req.Destination == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing origin or destination"})
		return
	}

	itineraries, err := h.resolver.Resolve(req.Origin, req.Destination)
	if err != nil {
		if errors.Is(err, routing.ErrNoRoute) {
			writeJSON(w, http.StatusNotFound, messageResponse{Message: "no routes found"})
			return
		}
		h.logger.Error("Route resolution failed", "origin", req.Origin, "destination", req.Destination, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "route resolution failed"})
		return
	}

	routes := make([]routePayload, 0, len(itineraries))
	for _, it := range itineraries {
		routes = append(routes, toRoutePayload(it))
	}

	writeJSON(w, http.StatusOK, resolveResponse{
		Origin:          req.Origin,
		Destination:     req.Destination,
		Routes:          routes,
		LastRefreshedAt: h.index.RebuiltAt(),
	})
}

func toRoutePayload(it routing.Itinerary) routePayload {
	if !it.Transfer {
		return routePayload{
			Service:          it.Service,
			Direction:        it.Direction,
			Stops:            it.Stops,
			EstimatedTimeMin: it.EstimatedMinutes,
		}
	}
	legs := make([]legPayload, 0, len(it.Legs))
	for _, leg := range it.Legs {
		legs = append(legs, legPayload{
			Service:   leg.Service,
			Direction: leg.Direction,
			From:      leg.From,
			To:        leg.To,
			Stops:     leg.Stops,
		})
	}
	return routePayload{
		Transfer:         true,
		Legs:             legs,
		EstimatedTimeMin: it.EstimatedMinutes,
	}
}

type stopPayload struct {
	Code string  `json:"code"`
	Name string  `json:"desc"`
	Road string  `json:"road"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

func (h *Handler) handleStops(w http.ResponseWriter, r *http.Request) {
	stops, err := h.store.SearchStops(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		h.logger.Error("Stop search failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "stop search failed"})
		return
	}

	payload := make([]stopPayload, 0, len(stops))
	for _, s := range stops {
		payload = append(payload, stopPayload{Code: s.Code, Name: s.Name, Road: s.Road, Lat: s.Lat, Lon: s.Lon})
	}
	writeJSON(w, http.StatusOK, payload)
}

type liveArrival struct {
	Service string    `json:"service"`
	Type    string    `json:"type"`
	ETA     []float64 `json:"eta"`
}

// handleLiveArrivals proxies a live per-stop lookup. The sample store is not
// written here; the collector is its sole writer.
func (h *Handler) handleLiveArrivals(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	services, err := h.fetcher.Arrivals(r.Context(), code)
	if err != nil {
		h.logger.Warn("Live arrival lookup failed", "stop_code", code, "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "live arrival lookup failed"})
		return
	}

	now := h.nowFn()
	results := make([]liveArrival, 0, len(services))
	for _, service := range services {
		etas := make([]float64, 0, 3)
		for _, slot := range service.Slots() {
			if slot.EstimatedArrival.IsZero() {
				continue
			}
			eta := slot.EstimatedArrival.Sub(now).Minutes()
			if eta < 0 {
				continue
			}
			etas = append(etas, math.Round(eta*10)/10)
		}
		results = append(results, liveArrival{
			Service: service.ServiceNo,
			Type:    service.VehicleType(),
			ETA:     etas,
		})
	}

	writeJSON(w, http.StatusOK, results)
}

type historyResponse struct {
	StopCode        string      `json:"stop_code,omitempty"`
	Series          interface{} `json:"series"`
	LastRefreshedAt time.Time   `json:"lastRefreshedAt"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	window := queryDuration(r, "window_hours", 24*time.Hour)

	series, err := h.history.HourlyAverages(r.Context(), code, window)
	if err != nil {
		h.logger.Error("History aggregation failed", "stop_code", code, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "history aggregation failed"})
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{
		StopCode:        code,
		Series:          series,
		LastRefreshedAt: h.lastCollectedAt(),
	})
}

func (h *Handler) handleNetworkHistory(w http.ResponseWriter, r *http.Request) {
	window := queryDuration(r, "window_hours", 24*time.Hour)

	series, err := h.history.NetworkHourlyAverages(r.Context(), window)
	if err != nil {
		h.logger.Error("Network history aggregation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "history aggregation failed"})
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{
		Series:          series,
		LastRefreshedAt: h.lastCollectedAt(),
	})
}

func (h *Handler) handleDelayTrend(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	service := r.URL.Query().Get("service")
	bucket := queryMinutes(r, "bucket_minutes", 30*time.Minute)
	window := queryDuration(r, "window_hours", 24*time.Hour)

	trend, err := h.history.DelayTrend(r.Context(), code, service, bucket, window)
	if err != nil {
		h.logger.Error("Delay trend failed", "stop_code", code, "service", service, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "delay trend failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stop_code": code,
		"service":   service,
		"trend":     trend,
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	running, cycle := h.collector.Status()
	topologyRefreshedAt, err := h.store.RefreshedAt(r.Context(), topology.SyncName)
	if err != nil {
		h.logger.Warn("Failed to read topology refresh time", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"collector": map[string]interface{}{
			"running":    running,
			"last_cycle": cycle,
		},
		"retention":             h.sweeper.Status(),
		"topology_refreshed_at": topologyRefreshedAt,
		"graph_rebuilt_at":      h.index.RebuiltAt(),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "error",
			"database":  "disconnected",
			"timestamp": time.Now().UTC(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"database":  "connected",
		"timestamp": time.Now().UTC(),
	})
}

func (h *Handler) lastCollectedAt() time.Time {
	_, cycle := h.collector.Status()
	return cycle.FinishedAt
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func queryDuration(r *http.Request, param string, fallback time.Duration) time.Duration {
	if raw := r.URL.Query().Get(param); raw != "" {
		if hours, err := strconv.Atoi(raw); err == nil && hours > 0 {
			return time.Duration(hours) * time.Hour
		}
	}
	return fallback
}

func queryMinutes(r *http.Request, param string, fallback time.Duration) time.Duration {
	if raw := r.URL.Query().Get(param); raw != "" {
		if minutes, err := strconv.Atoi(raw); err == nil && minutes > 0 {
			return time.Duration(minutes) * time.Minute
		}
	}
	return fallback
}
