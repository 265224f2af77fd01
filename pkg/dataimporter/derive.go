package dataimporter

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/transitgrid/transitgrid/pkg/geom"
	"github.com/transitgrid/transitgrid/pkg/tables"
)

// distanceMismatchBand is the allowed growth of the difference between
// declared and computed distances between consecutive shape points.
const distanceMismatchBand = 2.0

// deriveCompressedShapes builds one CompressedShape per distinct shape id:
// haversine cumulative distances, a single feed-wide calibration ratio from
// the first shape carrying declared distances, then simplified + original
// geometry and distances encoded.
func (session *ImportSession) deriveCompressedShapes() error {
	if len(session.shapeIDs) == 0 {
		return nil
	}

	filler := newTableFiller(session.db, session.stagingTable(tables.ShapesCompressed), tables.ShapesCompressed.InsertColumns())

	for shapeID := 1; shapeID <= len(session.shapeIDs); shapeID++ {
		points := session.shapePoints[shapeID]
		if len(points) == 0 {
			continue
		}

		sort.Slice(points, func(i, j int) bool { return points[i].sequence < points[j].sequence })

		coords := make([]geom.Coord, len(points))
		declared := make([]float64, len(points))
		allDeclared := true
		for i, point := range points {
			coords[i] = point.coord
			declared[i] = point.distance
			if !point.hasDistance {
				allDeclared = false
			}
		}

		meterDistances := geom.LineDistances(coords)

		if !session.hasDistanceRatio && allDeclared && len(coords) > 1 &&
			meterDistances[1] > 0 && declared[1] > 0 {
			session.distanceRatio = declared[1] / meterDistances[1]
			session.hasDistanceRatio = true
		}

		if allDeclared && session.hasDistanceRatio {
			previousDiff := 0.0
			for i := 1; i < len(points); i++ {
				diff := math.Abs(declared[i]/session.distanceRatio - meterDistances[i])
				if diff-previousDiff > distanceMismatchBand {
					session.notifier.Warning(fmt.Sprintf(
						"provided distances differ from calculated distances for shape %d", shapeID))
					break
				}
				previousDiff = diff
			}
		}

		calibrated := make([]float64, len(meterDistances))
		for i, distance := range meterDistances {
			calibrated[i] = distance * session.distanceRatio
		}

		simplified := geom.Simplify(coords, session.config.SimplifyTolerance)

		resampledMeters := make([]float64, len(simplified.Indices))
		resampledCalibrated := make([]float64, len(simplified.Indices))
		for i, index := range simplified.Indices {
			resampledMeters[i] = meterDistances[index]
			resampledCalibrated[i] = calibrated[index]
		}

		session.compressedShapes[shapeID] = &compressedShape{
			coords:         simplified.Coords,
			meterDistances: resampledMeters,
			stopDistances:  map[string]string{},
		}

		err := filler.add([]interface{}{
			shapeID,
			geom.EncodeCoords(simplified.Coords, geom.CoordPrecision),
			geom.EncodeValues(resampledCalibrated, geom.DistancePrecision),
			geom.EncodeCoords(coords, geom.CoordPrecision),
			geom.EncodeValues(calibrated, geom.DistancePrecision),
		})
		if err != nil {
			return err
		}
	}

	if err := filler.flush(); err != nil {
		return err
	}

	session.notifier.Progress(fmt.Sprintf("Compressed %d shapes", filler.added))
	return nil
}

// deriveStopSequences walks trips in ascending id order, computing per-stop
// projected distances along the trip's shape, encoding the stop-id list and
// arrival/departure offsets, and deduplicating every encoded payload
// through the session's content-keyed caches.
func (session *ImportSession) deriveStopSequences() error {
	sequenceFiller := newTableFiller(session.db, session.stagingTable(tables.StopSequences), tables.StopSequences.InsertColumns())
	distanceFiller := newTableFiller(session.db, session.stagingTable(tables.StopDistances), tables.StopDistances.InsertColumns())
	offsetFiller := newTableFiller(session.db, session.stagingTable(tables.StopHMSOffsets), tables.StopHMSOffsets.InsertColumns())
	tripFiller := newTableFiller(session.db, session.stagingTable(tables.TripsSseqs), tables.TripsSseqs.InsertColumns())
	stopFiller := newTableFiller(session.db, session.stagingTable(tables.StopsSseqs), tables.StopsSseqs.InsertColumns())

	stopSequencePairs := map[[2]int]bool{}

	for tripID := 1; tripID <= len(session.tripIDs); tripID++ {
		entries := session.stopTimesByTrip[tripID]
		if len(entries) == 0 {
			continue
		}

		sort.Slice(entries, func(i, j int) bool { return entries[i].sequence < entries[j].sequence })

		trip := session.trips[tripID]

		stopIDs := make([]int, len(entries))
		arrivalOffsets := make([]int, len(entries))
		departureOffsets := make([]int, len(entries))
		pickups := make([]int, len(entries))
		dropOffs := make([]int, len(entries))
		timepoints := make([]int, len(entries))
		headsigns := make([]string, len(entries))
		for i, entry := range entries {
			stopIDs[i] = entry.stopID
			arrivalOffsets[i] = entry.arrival - entries[0].arrival
			departureOffsets[i] = entry.departure - entries[0].departure
			pickups[i] = entry.pickup
			dropOffs[i] = entry.dropOff
			timepoints[i] = entry.timepoint
			headsigns[i] = entry.headsign
		}

		stopIDsEncoded := geom.EncodeInts(stopIDs)

		sequenceKey := stopIDsEncoded + "|" + trip.headsign
		sequenceID, known := session.sequenceKeys[sequenceKey]
		if !known {
			sequenceID = len(session.sequenceKeys) + 1
			session.sequenceKeys[sequenceKey] = sequenceID
			if err := sequenceFiller.add([]interface{}{stopIDsEncoded, trip.headsign}); err != nil {
				return err
			}
		}

		distanceID := 0
		if shape := session.compressedShapes[trip.shapeID]; shape != nil {
			encodedDistances, cached := shape.stopDistances[stopIDsEncoded]
			if !cached {
				stopCoords := make([]geom.Coord, len(stopIDs))
				for i, stopID := range stopIDs {
					stopCoords[i] = session.stopCoords[stopID]
				}

				result := geom.ProjectPointsAlong(shape.coords, shape.meterDistances, stopCoords, session.config.AcceptDistance)
				session.backwardProjections += result.NumBackward

				calibrated := make([]float64, len(result.Distances))
				for i, distance := range result.Distances {
					calibrated[i] = distance * session.distanceRatio
				}

				encodedDistances = geom.EncodeValues(calibrated, geom.DistancePrecision)
				shape.stopDistances[stopIDsEncoded] = encodedDistances
			}

			distanceID, known = session.distanceKeys[encodedDistances]
			if !known {
				distanceID = len(session.distanceKeys) + 1
				session.distanceKeys[encodedDistances] = distanceID
				if err := distanceFiller.add([]interface{}{encodedDistances}); err != nil {
					return err
				}
			}
		}

		headsignsJSON, err := json.Marshal(headsigns)
		if err != nil {
			return err
		}

		encodedOffsets := []string{
			geom.EncodeInts(arrivalOffsets),
			geom.EncodeInts(departureOffsets),
			geom.EncodeInts(pickups),
			geom.EncodeInts(dropOffs),
			geom.EncodeInts(timepoints),
			string(headsignsJSON),
		}

		offsetKey := strings.Join(encodedOffsets, "|")
		offsetID, known := session.offsetKeys[offsetKey]
		if !known {
			offsetID = len(session.offsetKeys) + 1
			session.offsetKeys[offsetKey] = offsetID
			err := offsetFiller.add([]interface{}{
				encodedOffsets[0], encodedOffsets[1], encodedOffsets[2],
				encodedOffsets[3], encodedOffsets[4], encodedOffsets[5],
			})
			if err != nil {
				return err
			}
		}

		if err := tripFiller.add([]interface{}{tripID, sequenceID, distanceID, offsetID}); err != nil {
			return err
		}

		for _, stopID := range stopIDs {
			pair := [2]int{stopID, sequenceID}
			if stopSequencePairs[pair] {
				continue
			}
			stopSequencePairs[pair] = true
			if err := stopFiller.add([]interface{}{stopID, sequenceID}); err != nil {
				return err
			}
		}

		key := routeDirectionKey{routeID: trip.routeID, directionID: trip.directionID}
		accumulator := session.routeDirections[key]
		if accumulator == nil {
			accumulator = &routeDirectionAccumulator{
				sequenceTrips: map[int]int{},
				sequenceShape: map[int]int{},
				sequenceStops: map[int]int{},
				shapeIDs:      map[int]bool{},
			}
			session.routeDirections[key] = accumulator
		}
		accumulator.sequenceTrips[sequenceID]++
		if _, known := accumulator.sequenceShape[sequenceID]; !known {
			accumulator.sequenceShape[sequenceID] = trip.shapeID
		}
		accumulator.sequenceStops[sequenceID] = len(stopIDs)
		if trip.shapeID != 0 {
			accumulator.shapeIDs[trip.shapeID] = true
		}
	}

	for _, filler := range []*tableFiller{sequenceFiller, distanceFiller, offsetFiller, tripFiller, stopFiller} {
		if err := filler.flush(); err != nil {
			return err
		}
	}

	if session.backwardProjections > 0 {
		session.notifier.Warning(fmt.Sprintf(
			"stop distance projection moved backward %d times", session.backwardProjections))
	}

	session.notifier.Progress(fmt.Sprintf("Derived %d stop sequences", len(session.sequenceKeys)))
	return nil
}
