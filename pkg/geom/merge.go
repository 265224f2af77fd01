package geom

import (
	"strconv"

	"github.com/rs/zerolog/log"
)

type mergeSegment struct {
	a, b      Coord
	count     int
	processed bool
}

func coordKey(c Coord) string {
	return strconv.FormatFloat(c.Lon, 'f', -1, 64) + "|" + strconv.FormatFloat(c.Lat, 'f', -1, 64)
}

// segmentKey is unordered: a segment and its reverse collapse to one key.
func segmentKey(keyA string, keyB string) string {
	if keyA < keyB {
		return keyA + "-" + keyB
	}
	return keyB + "-" + keyA
}

// MergeLines unions a set of paths into a minimal multi-path covering every
// distinct undirected segment exactly once. Extraction starts from the
// segment with the highest duplicate count (ties broken by first
// appearance, keeping output stable across runs) and greedily extends each
// new path from both ends through remaining incident segments.
func MergeLines(paths [][]Coord) [][]Coord {
	segments := map[string]*mergeSegment{}
	var segmentOrder []string
	incident := map[string][]string{}

	for _, path := range paths {
		for i := 0; i+1 < len(path); i++ {
			a, b := path[i], path[i+1]
			keyA, keyB := coordKey(a), coordKey(b)

			if keyA == keyB {
				log.Debug().Str("coord", keyA).Msg("Dropping zero length segment")
				continue
			}

			key := segmentKey(keyA, keyB)
			if segment, exists := segments[key]; exists {
				segment.count++
				continue
			}

			segments[key] = &mergeSegment{a: a, b: b, count: 1}
			segmentOrder = append(segmentOrder, key)
			incident[keyA] = append(incident[keyA], key)
			incident[keyB] = append(incident[keyB], key)
		}
	}

	var merged [][]Coord

	for {
		bestKey := ""
		bestCount := 0
		for _, key := range segmentOrder {
			segment := segments[key]
			if !segment.processed && segment.count > bestCount {
				bestCount = segment.count
				bestKey = key
			}
		}
		if bestKey == "" {
			break
		}

		segment := segments[bestKey]
		segment.processed = true
		path := []Coord{segment.a, segment.b}

		for {
			next := takeIncident(coordKey(path[len(path)-1]), incident, segments)
			if next == nil {
				break
			}
			path = append(path, otherEndpoint(next, path[len(path)-1]))
		}

		for {
			next := takeIncident(coordKey(path[0]), incident, segments)
			if next == nil {
				break
			}
			path = append([]Coord{otherEndpoint(next, path[0])}, path...)
		}

		merged = append(merged, path)
	}

	return merged
}

func takeIncident(key string, incident map[string][]string, segments map[string]*mergeSegment) *mergeSegment {
	for _, segmentKey := range incident[key] {
		segment := segments[segmentKey]
		if !segment.processed {
			segment.processed = true
			return segment
		}
	}
	return nil
}

func otherEndpoint(segment *mergeSegment, from Coord) Coord {
	if coordKey(segment.a) == coordKey(from) {
		return segment.b
	}
	return segment.a
}
