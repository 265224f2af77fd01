package geom

import (
	"fmt"
	"math"
	"strings"
)

// Delta + zigzag codec for coordinate paths and numeric series. Values are
// scaled by 10^precision, rounded, delta-encoded against the previous value
// and written as variable-length 5-bit groups with a continuation bit.

const (
	CoordPrecision    = 5
	DistancePrecision = 4
)

// Precision is clamped to [5,7] for every fractional series; 0 stays 0 for
// integer series. Distances encoded at DistancePrecision therefore carry
// five decimal places on the wire.
func clipPrecision(precision int) int {
	if precision <= 0 {
		return 0
	}
	if precision < 5 {
		return 5
	}
	if precision > 7 {
		return 7
	}
	return precision
}

// py2Round rounds half away from zero, matching the rounding the encoded
// feeds were originally produced with.
func py2Round(value float64) int64 {
	if value < 0 {
		return -int64(math.Floor(-value + 0.5))
	}
	return int64(math.Floor(value + 0.5))
}

func writeValue(builder *strings.Builder, current int64, previous int64) {
	delta := current - previous
	coordinate := delta << 1
	if delta < 0 {
		coordinate = ^coordinate
	}

	for coordinate >= 0x20 {
		builder.WriteByte(byte((0x20 | (coordinate & 0x1f)) + 63))
		coordinate >>= 5
	}
	builder.WriteByte(byte(coordinate + 63))
}

func readValue(encoded string, index int) (value int64, next int, err error) {
	var result int64
	var shift uint

	for {
		if index >= len(encoded) {
			return 0, index, fmt.Errorf("truncated encoded sequence")
		}
		b := int64(encoded[index]) - 63
		index++

		result |= (b & 0x1f) << shift
		shift += 5

		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index, nil
	}
	return result >> 1, index, nil
}

// EncodeValues encodes a flat numeric series at the given precision.
func EncodeValues(values []float64, precision int) string {
	factor := math.Pow10(clipPrecision(precision))

	var builder strings.Builder
	var previous int64
	for _, value := range values {
		current := py2Round(value * factor)
		writeValue(&builder, current, previous)
		previous = current
	}

	return builder.String()
}

// DecodeValues reverses EncodeValues.
func DecodeValues(encoded string, precision int) ([]float64, error) {
	factor := math.Pow10(clipPrecision(precision))

	var values []float64
	var current int64
	index := 0
	for index < len(encoded) {
		delta, next, err := readValue(encoded, index)
		if err != nil {
			return nil, err
		}
		index = next
		current += delta
		values = append(values, float64(current)/factor)
	}

	return values, nil
}

// EncodeInts encodes an integer series (ids, enums) at precision 0.
func EncodeInts(values []int) string {
	floats := make([]float64, len(values))
	for i, value := range values {
		floats[i] = float64(value)
	}
	return EncodeValues(floats, 0)
}

// EncodeCoords encodes a coordinate path, interleaving lon and lat deltas.
func EncodeCoords(coords []Coord, precision int) string {
	factor := math.Pow10(clipPrecision(precision))

	var builder strings.Builder
	var previousLon, previousLat int64
	for _, coord := range coords {
		lon := py2Round(coord.Lon * factor)
		lat := py2Round(coord.Lat * factor)

		writeValue(&builder, lon, previousLon)
		writeValue(&builder, lat, previousLat)

		previousLon = lon
		previousLat = lat
	}

	return builder.String()
}

// DecodeCoords reverses EncodeCoords.
func DecodeCoords(encoded string, precision int) ([]Coord, error) {
	factor := math.Pow10(clipPrecision(precision))

	var coords []Coord
	var lon, lat int64
	index := 0
	for index < len(encoded) {
		deltaLon, next, err := readValue(encoded, index)
		if err != nil {
			return nil, err
		}
		deltaLat, next, err := readValue(encoded, next)
		if err != nil {
			return nil, err
		}
		index = next

		lon += deltaLon
		lat += deltaLat
		coords = append(coords, Coord{
			Lon: float64(lon) / factor,
			Lat: float64(lat) / factor,
		})
	}

	return coords, nil
}
