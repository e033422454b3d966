// models/route.go
package models

// Route is a canonical row of routes.txt.
// Field order defines the column order of the canonical CSV and of the destination table.
type Route struct {
	RouteID        string `csv:"route_id" json:"route_id"`
	RouteShortName string `csv:"route_short_name" json:"route_short_name"`
	RouteDesc      string `csv:"route_desc" json:"route_desc"`

	CityID int64  `csv:"city_id" json:"city_id"`
	Date   string `csv:"date" json:"date"`
}

// Values lists the fields in schema order for an INSERT.
func (r *Route) Values() []any {
	return []any{r.RouteID, r.RouteShortName, r.RouteDesc, r.CityID, r.Date}
}

// Fields lists pointers to the fields in schema order for Scan.
func (r *Route) Fields() []any {
	return []any{&r.RouteID, &r.RouteShortName, &r.RouteDesc, &r.CityID, &r.Date}
}

// Trip is a canonical row of trips.txt.
type Trip struct {
	RouteID      string `csv:"route_id" json:"route_id"`
	ServiceID    string `csv:"service_id" json:"service_id"`
	TripID       string `csv:"trip_id" json:"trip_id"`
	TripHeadsign string `csv:"trip_headsign" json:"trip_headsign"`
	DirectionID  string `csv:"direction_id" json:"direction_id"`
	ShapeID      string `csv:"shape_id" json:"shape_id"`

	CityID int64  `csv:"city_id" json:"city_id"`
	Date   string `csv:"date" json:"date"`
}

func (t *Trip) Values() []any {
	return []any{t.RouteID, t.ServiceID, t.TripID, t.TripHeadsign, t.DirectionID, t.ShapeID, t.CityID, t.Date}
}

func (t *Trip) Fields() []any {
	return []any{&t.RouteID, &t.ServiceID, &t.TripID, &t.TripHeadsign, &t.DirectionID, &t.ShapeID, &t.CityID, &t.Date}
}

// Stop is a canonical row of stops.txt. Coordinates are kept as published.
type Stop struct {
	StopID   string `csv:"stop_id" json:"stop_id"`
	StopCode string `csv:"stop_code" json:"stop_code"`
	StopName string `csv:"stop_name" json:"stop_name"`
	StopLat  string `csv:"stop_lat" json:"stop_lat"`
	StopLon  string `csv:"stop_lon" json:"stop_lon"`

	CityID int64  `csv:"city_id" json:"city_id"`
	Date   string `csv:"date" json:"date"`
}

func (s *Stop) Values() []any {
	return []any{s.StopID, s.StopCode, s.StopName, s.StopLat, s.StopLon, s.CityID, s.Date}
}

func (s *Stop) Fields() []any {
	return []any{&s.StopID, &s.StopCode, &s.StopName, &s.StopLat, &s.StopLon, &s.CityID, &s.Date}
}

// StopTime is a canonical row of stop_times.txt.
type StopTime struct {
	TripID        string `csv:"trip_id" json:"trip_id"`
	ArrivalTime   string `csv:"arrival_time" json:"arrival_time"`
	DepartureTime string `csv:"departure_time" json:"departure_time"`
	StopID        string `csv:"stop_id" json:"stop_id"`
	StopSequence  string `csv:"stop_sequence" json:"stop_sequence"`
	PickupType    string `csv:"pickup_type" json:"pickup_type"`
	DropOffType   string `csv:"drop_off_type" json:"drop_off_type"`

	CityID int64  `csv:"city_id" json:"city_id"`
	Date   string `csv:"date" json:"date"`
}

func (st *StopTime) Values() []any {
	return []any{st.TripID, st.ArrivalTime, st.DepartureTime, st.StopID, st.StopSequence, st.PickupType, st.DropOffType, st.CityID, st.Date}
}

func (st *StopTime) Fields() []any {
	return []any{&st.TripID, &st.ArrivalTime, &st.DepartureTime, &st.StopID, &st.StopSequence, &st.PickupType, &st.DropOffType, &st.CityID, &st.Date}
}
