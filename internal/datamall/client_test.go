package datamall

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/bustracker-data/internal/common/config"
	"github.com/bustracker-data/internal/common/logger"
	"github.com/bustracker-data/pkg/datamall/models"
)

func testClient(baseURL string, pageSize int) *Client {
	return NewClient(config.DataMallConfig{
		BaseURL:    baseURL,
		AccountKey: "test-key",
		Timeout:    2 * time.Second,
		PageSize:   pageSize,
	}, logger.New())
}

func TestStopsPagination(t *testing.T) {
	// Page size 2: one full page, then a short page ends pagination.
	pages := map[int][]models.BusStop{
		0: {
			{BusStopCode: "01012", Description: "Hotel Grand Pacific", RoadName: "Victoria St", Latitude: 1.296, Longitude: 103.852},
			{BusStopCode: "01013", Description: "St. Joseph's Ch", RoadName: "Victoria St", Latitude: 1.297, Longitude: 103.853},
		},
		2: {
			{BusStopCode: "01019", Description: "Bras Basah Cplx", RoadName: "Victoria St", Latitude: 1.298, Longitude: 103.854},
		},
	}

	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(HeaderAccountKey)
		skip, _ := strconv.Atoi(r.URL.Query().Get("$skip"))
		json.NewEncoder(w).Encode(models.BusStopsResponse{Value: pages[skip]})
	}))
	defer server.Close()

	stops, err := testClient(server.URL, 2).Stops(context.Background())
	if err != nil {
		t.Fatalf("Stops failed: %v", err)
	}
	if len(stops) != 3 {
		t.Fatalf("Expected 3 stops across pages, got %d", len(stops))
	}
	if stops[2].BusStopCode != "01019" {
		t.Errorf("Expected last stop 01019, got %s", stops[2].BusStopCode)
	}
	if gotKey != "test-key" {
		t.Errorf("Expected account key header, got %q", gotKey)
	}
}

func TestStopsEmptyFirstPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.BusStopsResponse{})
	}))
	defer server.Close()

	stops, err := testClient(server.URL, 2).Stops(context.Background())
	if err != nil {
		t.Fatalf("Stops failed: %v", err)
	}
	if len(stops) != 0 {
		t.Fatalf("Expected no stops, got %d", len(stops))
	}
}

func TestRoutesPagination(t *testing.T) {
	pages := map[int][]models.BusRoute{
		0: {
			{ServiceNo: "10", Direction: 1, StopSequence: 1, BusStopCode: "01012", Distance: 0},
			{ServiceNo: "10", Direction: 1, StopSequence: 2, BusStopCode: "01013", Distance: 0.6},
		},
		2: {
			{ServiceNo: "10", Direction: 1, StopSequence: 3, BusStopCode: "01019", Distance: 1.1},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		skip, _ := strconv.Atoi(r.URL.Query().Get("$skip"))
		json.NewEncoder(w).Encode(models.BusRoutesResponse{Value: pages[skip]})
	}))
	defer server.Close()

	routes, err := testClient(server.URL, 2).Routes(context.Background())
	if err != nil {
		t.Fatalf("Routes failed: %v", err)
	}
	if len(routes) != 3 {
		t.Fatalf("Expected 3 route edges, got %d", len(routes))
	}
	if routes[2].StopSequence != 3 {
		t.Errorf("Expected last edge at sequence 3, got %d", routes[2].StopSequence)
	}
}

func TestArrivalsParsesSlots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("BusStopCode"); got != "97009" {
			t.Errorf("Expected BusStopCode=97009, got %q", got)
		}
		fmt.Fprint(w, `{
			"BusStopCode": "97009",
			"Services": [{
				"ServiceNo": "36",
				"Operator": "GAS",
				"NextBus":  {"EstimatedArrival": "2026-08-29T12:05:00+08:00", "Type": "SD"},
				"NextBus2": {"EstimatedArrival": "2026-08-29T12:17:00+08:00", "Type": "DD"},
				"NextBus3": {"EstimatedArrival": ""}
			}]
		}`)
	}))
	defer server.Close()

	services, err := testClient(server.URL, 500).Arrivals(context.Background(), "97009")
	if err != nil {
		t.Fatalf("Arrivals failed: %v", err)
	}
	if len(services) != 1 {
		t.Fatalf("Expected 1 service, got %d", len(services))
	}

	svc := services[0]
	if svc.ServiceNo != "36" {
		t.Errorf("Expected service 36, got %s", svc.ServiceNo)
	}
	if svc.VehicleType() != "SD" {
		t.Errorf("Expected vehicle type SD, got %s", svc.VehicleType())
	}
	if svc.NextBus.EstimatedArrival.IsZero() {
		t.Error("Expected first slot to carry an arrival time")
	}
	if !svc.NextBus3.EstimatedArrival.IsZero() {
		t.Error("Expected empty third slot to stay zero")
	}
}

func TestErrorStatusSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	if _, err := testClient(server.URL, 500).Arrivals(context.Background(), "97009"); err == nil {
		t.Fatal("Expected an error for a non-200 response")
	}
}
