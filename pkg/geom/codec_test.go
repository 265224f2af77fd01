package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeValues(t *testing.T) {
	testCases := []struct {
		name      string
		values    []float64
		precision int
	}{
		{"empty", nil, 5},
		{"integers", []float64{1, 5, 5, 12, 3}, 0},
		{"distances", []float64{0, 120.5012, 340.25, 1200.9999}, 4},
		{"precision five", []float64{-73.985, 40.7484, -73.9857, 40.7487}, 5},
		{"precision six", []float64{151.2093, -33.8688}, 6},
		{"precision seven", []float64{0.0000001, -0.0000001}, 7},
		{"negative run", []float64{-1000.12345, -999.5, -2000}, 5},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			encoded := EncodeValues(testCase.values, testCase.precision)

			if len(testCase.values) == 0 {
				assert.Empty(t, encoded)
			}

			decoded, err := DecodeValues(encoded, testCase.precision)
			require.NoError(t, err)
			require.Len(t, decoded, len(testCase.values))

			tolerance := math.Pow10(-testCase.precision)
			for i, value := range testCase.values {
				assert.InDelta(t, value, decoded[i], tolerance)
			}
		})
	}
}

func TestEncodeDecodeCoords(t *testing.T) {
	coords := []Coord{
		{Lon: -73.985, Lat: 40.7484},
		{Lon: -73.9857, Lat: 40.7487},
		{Lon: -73.99, Lat: 40.75},
	}

	for _, precision := range []int{5, 6, 7} {
		encoded := EncodeCoords(coords, precision)
		decoded, err := DecodeCoords(encoded, precision)
		require.NoError(t, err)
		require.Len(t, decoded, len(coords))

		tolerance := math.Pow10(-precision)
		for i, coord := range coords {
			assert.InDelta(t, coord.Lon, decoded[i].Lon, tolerance)
			assert.InDelta(t, coord.Lat, decoded[i].Lat, tolerance)
		}
	}
}

func TestEncodeCoordsEmpty(t *testing.T) {
	assert.Empty(t, EncodeCoords(nil, 5))

	decoded, err := DecodeCoords("", 5)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestCoordPrecisionClamp(t *testing.T) {
	coords := []Coord{{Lon: 1.23456789, Lat: 2.34567891}}

	// Below the clamp floor everything encodes at precision 5.
	assert.Equal(t, EncodeCoords(coords, 5), EncodeCoords(coords, 3))
	// Above the ceiling everything encodes at precision 7.
	assert.Equal(t, EncodeCoords(coords, 7), EncodeCoords(coords, 9))
	assert.NotEqual(t, EncodeCoords(coords, 5), EncodeCoords(coords, 7))
}

func TestValuePrecisionClip(t *testing.T) {
	values := []float64{0, 120.5012, 340.25}

	// Fractional series clip to the same [5,7] band as coordinates, so
	// distance payloads carry five decimal places on the wire.
	assert.Equal(t, EncodeValues(values, 5), EncodeValues(values, DistancePrecision))
	assert.Equal(t, EncodeValues(values, 7), EncodeValues(values, 9))
	assert.NotEqual(t, EncodeValues(values, 5), EncodeValues(values, 7))

	// Integer series stay at precision 0.
	ints := []float64{1, 2, 3}
	decoded, err := DecodeValues(EncodeValues(ints, 0), 0)
	require.NoError(t, err)
	assert.Equal(t, ints, decoded)
}

func TestDecodeTruncated(t *testing.T) {
	encoded := EncodeValues([]float64{123456.789}, 5)

	_, err := DecodeValues(encoded[:len(encoded)-1], 5)
	assert.Error(t, err)
}

func TestEncodeInts(t *testing.T) {
	encoded := EncodeInts([]int{10, 4, 4, 99})

	decoded, err := DecodeValues(encoded, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 4, 4, 99}, decoded)
}
