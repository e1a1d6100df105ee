// Package models holds the wire types returned by the DataMall transit feed.
package models

// BusStop is one row of the paginated BusStops listing.
type BusStop struct {
	BusStopCode string  `json:"BusStopCode"`
	RoadName    string  `json:"RoadName"`
	Description string  `json:"Description"`
	Latitude    float64 `json:"Latitude"`
	Longitude   float64 `json:"Longitude"`
}

type BusStopsResponse struct {
	Value []BusStop `json:"value"`
}

// BusRoute is one row of the paginated BusRoutes listing: the position of one
// stop along one directional variant of one service.
type BusRoute struct {
	ServiceNo    string  `json:"ServiceNo"`
	Direction    int     `json:"Direction"`
	StopSequence int     `json:"StopSequence"`
	BusStopCode  string  `json:"BusStopCode"`
	Distance     float64 `json:"Distance"`
}

type BusRoutesResponse struct {
	Value []BusRoute `json:"value"`
}

// NextBus is one next-vehicle slot of a live arrival lookup.
type NextBus struct {
	EstimatedArrival ArrivalTime `json:"EstimatedArrival"`
	Load             string      `json:"Load"`
	Feature          string      `json:"Feature"`
	Type             string      `json:"Type"`
}

// ArrivalService is one service's live arrival entry, carrying up to three
// next-vehicle slots.
type ArrivalService struct {
	ServiceNo string  `json:"ServiceNo"`
	Operator  string  `json:"Operator"`
	NextBus   NextBus `json:"NextBus"`
	NextBus2  NextBus `json:"NextBus2"`
	NextBus3  NextBus `json:"NextBus3"`
}

// Slots returns the next-vehicle slots in arrival order.
func (s *ArrivalService) Slots() []NextBus {
	return []NextBus{s.NextBus, s.NextBus2, s.NextBus3}
}

// VehicleType returns the vehicle type code of the first slot, or "Unknown".
func (s *ArrivalService) VehicleType() string {
	if s.NextBus.Type != "" {
		return s.NextBus.Type
	}
	return "Unknown"
}

type BusArrivalResponse struct {
	BusStopCode string           `json:"BusStopCode"`
	Services    []ArrivalService `json:"Services"`
}
