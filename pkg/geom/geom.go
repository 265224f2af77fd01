package geom

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const earthRadius = 6378137.0

// Coord is a geographic point, longitude first.
type Coord struct {
	Lon float64
	Lat float64
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a Coord, b Coord) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadius * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// LineDistances returns the cumulative distance in meters at each point of
// the line, starting at 0.
func LineDistances(coords []Coord) []float64 {
	distances := make([]float64, len(coords))

	total := 0.0
	for i := 1; i < len(coords); i++ {
		total += Haversine(coords[i-1], coords[i])
		distances[i] = total
	}

	return distances
}

// IsClockwise reports the winding of a closed line using the shoelace sum.
func IsClockwise(coords []Coord) bool {
	sum := 0.0
	for i := 0; i < len(coords); i++ {
		current := coords[i]
		next := coords[(i+1)%len(coords)]
		sum += (next.Lon - current.Lon) * (next.Lat + current.Lat)
	}

	return sum >= 0
}

// toMercator projects a coordinate into an approximately conformal plane
// where planar distances approximate meters.
func toMercator(c Coord) (float64, float64) {
	x := c.Lon * 20037508.34 / 180
	y := math.Log(math.Tan((90+c.Lat)*math.Pi/360)) / (math.Pi / 180) * 20037508.34 / 180
	return x, y
}

// Extent is a running bounding box over all coordinates seen.
type Extent struct {
	MinLon float64 `json:"minLon"`
	MinLat float64 `json:"minLat"`
	MaxLon float64 `json:"maxLon"`
	MaxLat float64 `json:"maxLat"`

	set bool
}

func (e *Extent) Update(c Coord) {
	if !e.set {
		e.MinLon, e.MaxLon = c.Lon, c.Lon
		e.MinLat, e.MaxLat = c.Lat, c.Lat
		e.set = true
		return
	}

	e.MinLon = math.Min(e.MinLon, c.Lon)
	e.MaxLon = math.Max(e.MaxLon, c.Lon)
	e.MinLat = math.Min(e.MinLat, c.Lat)
	e.MaxLat = math.Max(e.MaxLat, c.Lat)
}

func (e *Extent) IsSet() bool {
	return e.set
}

// ParseHMS parses a clock time of the form H:MM:SS or HH:MM:SS into seconds
// of day. Hours past 23 are valid, trips can run past midnight.
func ParseHMS(value string) (int, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time %q", value)
	}

	hours, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || hours < 0 {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	seconds, err := strconv.Atoi(parts[2])
	if err != nil || seconds < 0 || seconds > 59 {
		return 0, fmt.Errorf("invalid time %q", value)
	}

	return hours*3600 + minutes*60 + seconds, nil
}
