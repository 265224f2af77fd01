package dataimporter

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/transitgrid/transitgrid/pkg/geom"
	"github.com/transitgrid/transitgrid/pkg/tables"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	directionNorthbound       = "northbound"
	directionSouthbound       = "southbound"
	directionEastbound        = "eastbound"
	directionWestbound        = "westbound"
	directionClockwise        = "clockwise"
	directionCounterclockwise = "cntrclockwise"
)

// classifyDirection labels a merged path with its GTFS-style direction:
// winding for closed paths, net displacement otherwise.
func classifyDirection(coords []geom.Coord) string {
	if len(coords) < 2 {
		return ""
	}

	first := coords[0]
	last := coords[len(coords)-1]

	if first == last {
		if geom.IsClockwise(coords) {
			return directionClockwise
		}
		return directionCounterclockwise
	}

	deltaLon := last.Lon - first.Lon
	deltaLat := last.Lat - first.Lat

	if math.Abs(deltaLon) > math.Abs(deltaLat*2) {
		if deltaLon < 0 {
			return directionEastbound
		}
		return directionWestbound
	}

	if deltaLat < 0 {
		return directionSouthbound
	}
	return directionNorthbound
}

// deriveRouteDirections writes the per-route+direction rollups once all
// trips are processed: the sequences and shapes used, the merged geometry
// with its direction label, and the per-route combined shape.
func (session *ImportSession) deriveRouteDirections() error {
	routeSequenceFiller := newTableFiller(session.db, session.stagingTable(tables.RoutesSseqs), tables.RoutesSseqs.InsertColumns())
	routeShapesFiller := newTableFiller(session.db, session.stagingTable(tables.RoutesShapes), tables.RoutesShapes.InsertColumns())
	directionFiller := newTableFiller(session.db, session.stagingTable(tables.RoutesDirections), tables.RoutesDirections.InsertColumns())
	routeShapeFiller := newTableFiller(session.db, session.stagingTable(tables.RoutesShape), tables.RoutesShape.InsertColumns())

	for routeID := 1; routeID <= len(session.routeIDs); routeID++ {
		hasTrips := false
		var routePaths []string

		for directionID := 0; directionID <= 1; directionID++ {
			accumulator := session.routeDirections[routeDirectionKey{routeID: routeID, directionID: directionID}]
			if accumulator == nil {
				continue
			}
			hasTrips = true

			sequenceIDs := maps.Keys(accumulator.sequenceTrips)
			slices.Sort(sequenceIDs)

			longestSequenceID := 0
			longestStopCount := 0
			for _, sequenceID := range sequenceIDs {
				err := routeSequenceFiller.add([]interface{}{
					routeID, directionID, sequenceID,
					accumulator.sequenceShape[sequenceID],
					accumulator.sequenceTrips[sequenceID],
				})
				if err != nil {
					return err
				}

				if accumulator.sequenceStops[sequenceID] > longestStopCount {
					longestStopCount = accumulator.sequenceStops[sequenceID]
					longestSequenceID = sequenceID
				}
			}

			shapeIDs := maps.Keys(accumulator.shapeIDs)
			slices.Sort(shapeIDs)

			var paths [][]geom.Coord
			for _, shapeID := range shapeIDs {
				if err := routeShapesFiller.add([]interface{}{routeID, directionID, shapeID}); err != nil {
					return err
				}
				if shape := session.compressedShapes[shapeID]; shape != nil {
					paths = append(paths, shape.coords)
				}
			}

			merged := geom.MergeLines(paths)

			encodedPaths := make([]string, len(merged))
			for i, path := range merged {
				encodedPaths[i] = geom.EncodeCoords(path, geom.CoordPrecision)
			}
			encodedJSON, err := json.Marshal(encodedPaths)
			if err != nil {
				return err
			}
			routePaths = append(routePaths, encodedPaths...)

			direction := ""
			if len(merged) > 0 {
				direction = classifyDirection(merged[0])
			}

			err = directionFiller.add([]interface{}{
				routeID, directionID, direction, longestStopCount,
				longestSequenceID, string(encodedJSON),
			})
			if err != nil {
				return err
			}
		}

		if !hasTrips {
			session.notifier.Warning(fmt.Sprintf(
				"there are no trips assigned to route %s", session.routeNames[routeID]))
			continue
		}

		routePathsJSON, err := json.Marshal(routePaths)
		if err != nil {
			return err
		}
		if err := routeShapeFiller.add([]interface{}{routeID, string(routePathsJSON)}); err != nil {
			return err
		}
	}

	for _, filler := range []*tableFiller{routeSequenceFiller, routeShapesFiller, directionFiller, routeShapeFiller} {
		if err := filler.flush(); err != nil {
			return err
		}
	}

	session.notifier.Progress("Derived route directions")
	return nil
}
