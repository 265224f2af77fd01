package dataimporter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/transitgrid/transitgrid/pkg/geom"
	"github.com/transitgrid/transitgrid/pkg/tables"
)

const (
	numRouteTypes    = 8
	defaultRouteType = 3 // bus

	locationTypeStop    = 0
	locationTypeStation = 1
)

// parseEnum normalizes a numeric enum field: empty means the default,
// anything outside [0,max) is a validation failure.
func parseEnum(value string, max int, defaultValue int) (int, bool) {
	if strings.TrimSpace(value) == "" {
		return defaultValue, true
	}

	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed < 0 || parsed >= max {
		return 0, false
	}
	return parsed, true
}

func (session *ImportSession) stageFiles(source *feedSource) error {
	if err := session.stageAgencies(source); err != nil {
		return err
	}
	if err := session.stageRoutes(source); err != nil {
		return err
	}
	if err := session.stageStops(source); err != nil {
		return err
	}
	if err := session.stageShapes(source); err != nil {
		return err
	}
	if err := session.stageCalendar(source); err != nil {
		return err
	}
	if err := session.stageCalendarDates(source); err != nil {
		return err
	}

	// Nothing downstream can resolve against an empty feed.
	if len(session.routeIDs) == 0 || len(session.stopIDs) == 0 {
		return validationErrorf("feed", "no importable routes or stops")
	}

	if err := session.stageTrips(source); err != nil {
		return err
	}
	return session.stageStopTimes(source)
}

func (session *ImportSession) stageAgencies(source *feedSource) error {
	reader, exists, err := source.Open("agency.txt")
	if err != nil {
		return err
	}
	if !exists {
		return validationErrorf("agency", "required file agency.txt is missing")
	}
	defer reader.Close()

	filler := newTableFiller(session.db, session.stagingTable(tables.Agency), tables.Agency.InsertColumns())

	err = streamRecords(reader, func(record *AgencyRecord) error {
		if record.Name == "" || record.URL == "" || record.Timezone == "" {
			return validationErrorf("agency", "agency_name, agency_url and agency_timezone are required")
		}

		externalID := record.ID
		if externalID == "" {
			externalID = strconv.Itoa(len(session.agencyIDs) + 1)
		}

		internalID := len(session.agencyIDs) + 1
		session.agencyIDs[externalID] = internalID

		return filler.add([]interface{}{
			externalID, record.Name, record.URL, record.Timezone,
			record.Lang, record.Phone, record.FareURL, record.Email,
		})
	})
	if err != nil {
		return err
	}
	if err := filler.flush(); err != nil {
		return err
	}

	session.notifier.Progress(fmt.Sprintf("Imported %d agencies", filler.added))
	return nil
}

func (session *ImportSession) stageRoutes(source *feedSource) error {
	reader, exists, err := source.Open("routes.txt")
	if err != nil {
		return err
	}
	if !exists {
		return validationErrorf("route", "required file routes.txt is missing")
	}
	defer reader.Close()

	filler := newTableFiller(session.db, session.stagingTable(tables.Routes), tables.Routes.InsertColumns())

	err = streamRecords(reader, func(record *RouteRecord) error {
		if record.ID == "" {
			return validationErrorf("route", "route_id is required")
		}

		agencyID := 1
		if record.AgencyID != "" {
			resolved, known := session.agencyIDs[record.AgencyID]
			if !known {
				return validationErrorf("route", "route %s references unknown agency %s", record.ID, record.AgencyID)
			}
			agencyID = resolved
		}

		routeType := defaultRouteType
		if parsed, err := strconv.Atoi(strings.TrimSpace(record.Type)); err == nil && parsed >= 0 && parsed < numRouteTypes {
			routeType = parsed
		}

		longName := record.LongName
		if longName == "" {
			longName = record.ShortName
		}

		sortOrder := 0
		if parsed, err := strconv.Atoi(strings.TrimSpace(record.SortOrder)); err == nil {
			sortOrder = parsed
		}

		internalID := len(session.routeIDs) + 1
		session.routeIDs[record.ID] = internalID
		session.routeNames[internalID] = record.ID
		session.routeTypes[internalID] = routeType

		return filler.add([]interface{}{
			record.ID, agencyID, record.ShortName, longName, record.Desc,
			routeType, record.URL, record.Color, record.TextColor, sortOrder,
		})
	})
	if err != nil {
		return err
	}
	if err := filler.flush(); err != nil {
		return err
	}

	session.notifier.Progress(fmt.Sprintf("Imported %d routes", filler.added))
	return nil
}

func (session *ImportSession) stageStops(source *feedSource) error {
	reader, exists, err := source.Open("stops.txt")
	if err != nil {
		return err
	}
	if !exists {
		return validationErrorf("stop", "required file stops.txt is missing")
	}
	defer reader.Close()

	filler := newTableFiller(session.db, session.stagingTable(tables.Stops), tables.Stops.InsertColumns())

	err = streamRecords(reader, func(record *StopRecord) error {
		if record.ID == "" {
			return validationErrorf("stop", "stop_id is required")
		}

		lat, latErr := strconv.ParseFloat(strings.TrimSpace(record.Lat), 64)
		lon, lonErr := strconv.ParseFloat(strings.TrimSpace(record.Lon), 64)
		if latErr != nil || lonErr != nil {
			return validationErrorf("stop", "stop %s has invalid coordinates", record.ID)
		}

		locationType, valid := parseEnum(record.LocationType, locationTypeStation+1, locationTypeStop)
		if !valid {
			return validationErrorf("stop", "stop %s has invalid location_type %s", record.ID, record.LocationType)
		}
		if locationType == locationTypeStation && record.ParentStation != "" {
			return validationErrorf("stop", "station %s cannot have a parent station", record.ID)
		}

		wheelchairBoarding, valid := parseEnum(record.WheelchairBoarding, 3, 0)
		if !valid {
			return validationErrorf("stop", "stop %s has invalid wheelchair_boarding %s", record.ID, record.WheelchairBoarding)
		}

		coord := geom.Coord{Lon: lon, Lat: lat}
		session.extent.Update(coord)

		internalID := len(session.stopIDs) + 1
		session.stopIDs[record.ID] = internalID
		session.stopCoords[internalID] = coord

		return filler.add([]interface{}{
			record.ID, record.Code, record.Name, record.Desc, lat, lon,
			record.ZoneID, record.URL, locationType, record.ParentStation,
			record.Timezone, wheelchairBoarding,
		})
	})
	if err != nil {
		return err
	}
	if err := filler.flush(); err != nil {
		return err
	}

	session.notifier.Progress(fmt.Sprintf("Imported %d stops", filler.added))
	return nil
}

func (session *ImportSession) stageShapes(source *feedSource) error {
	reader, exists, err := source.Open("shapes.txt")
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	defer reader.Close()

	filler := newTableFiller(session.db, session.stagingTable(tables.Shapes), tables.Shapes.InsertColumns())

	err = streamRecords(reader, func(record *ShapeRecord) error {
		if record.ShapeID == "" {
			return validationErrorf("shape", "shape_id is required")
		}

		sequence, err := strconv.Atoi(strings.TrimSpace(record.Sequence))
		if err != nil {
			return validationErrorf("shape", "shape %s has non-integer shape_pt_sequence %q", record.ShapeID, record.Sequence)
		}

		lat, latErr := strconv.ParseFloat(strings.TrimSpace(record.Lat), 64)
		lon, lonErr := strconv.ParseFloat(strings.TrimSpace(record.Lon), 64)
		if latErr != nil || lonErr != nil {
			return validationErrorf("shape", "shape %s has invalid coordinates", record.ShapeID)
		}

		internalID, known := session.shapeIDs[record.ShapeID]
		if !known {
			internalID = len(session.shapeIDs) + 1
			session.shapeIDs[record.ShapeID] = internalID
		}

		point := shapePoint{
			coord:    geom.Coord{Lon: lon, Lat: lat},
			sequence: sequence,
		}

		var distance interface{}
		if trimmed := strings.TrimSpace(record.DistTraveled); trimmed != "" {
			parsed, err := strconv.ParseFloat(trimmed, 64)
			if err != nil {
				return validationErrorf("shape", "shape %s has invalid shape_dist_traveled %q", record.ShapeID, trimmed)
			}
			point.distance = parsed
			point.hasDistance = true
			distance = parsed
		}

		session.shapePoints[internalID] = append(session.shapePoints[internalID], point)

		return filler.add([]interface{}{internalID, lat, lon, sequence, distance})
	})
	if err != nil {
		return err
	}
	if err := filler.flush(); err != nil {
		return err
	}

	session.notifier.Progress(fmt.Sprintf("Imported %d shape points", filler.added))
	return nil
}

// weekday bitmask, Monday is bit 0.
var maskNames = map[int]string{
	0:   "by date",
	31:  "Weekday",
	96:  "Weekend",
	127: "Daily",
}

var dayNames = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func maskName(mask int) string {
	if name, known := maskNames[mask]; known {
		return name
	}

	var days []string
	for day := 0; day < 7; day++ {
		if mask&(1<<day) != 0 {
			days = append(days, dayNames[day])
		}
	}
	return strings.Join(days, ",")
}

func (session *ImportSession) stageCalendar(source *feedSource) error {
	reader, exists, err := source.Open("calendar.txt")
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	defer reader.Close()

	session.hasCalendarFile = true

	filler := newTableFiller(session.db, session.stagingTable(tables.Calendar), tables.Calendar.InsertColumns())

	err = streamRecords(reader, func(record *CalendarRecord) error {
		if record.ServiceID == "" {
			return validationErrorf("calendar", "service_id is required")
		}

		dayFlags := []string{
			record.Monday, record.Tuesday, record.Wednesday, record.Thursday,
			record.Friday, record.Saturday, record.Sunday,
		}

		mask := 0
		days := make([]int, 7)
		for day, flag := range dayFlags {
			if strings.TrimSpace(flag) == "1" {
				mask |= 1 << day
				days[day] = 1
			}
		}

		session.serviceIDs[record.ServiceID] = len(session.serviceIDs) + 1

		return filler.add([]interface{}{
			record.ServiceID, days[0], days[1], days[2], days[3], days[4],
			days[5], days[6], record.StartDate, record.EndDate,
			mask, maskName(mask),
		})
	})
	if err != nil {
		return err
	}
	if err := filler.flush(); err != nil {
		return err
	}

	session.notifier.Progress(fmt.Sprintf("Imported %d calendars", filler.added))
	return nil
}

func (session *ImportSession) stageCalendarDates(source *feedSource) error {
	reader, exists, err := source.Open("calendar_dates.txt")
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	defer reader.Close()

	filler := newTableFiller(session.db, session.stagingTable(tables.CalendarDates), tables.CalendarDates.InsertColumns())
	calendarFiller := newTableFiller(session.db, session.stagingTable(tables.Calendar), tables.Calendar.InsertColumns())

	err = streamRecords(reader, func(record *CalendarDateRecord) error {
		if record.ServiceID == "" || record.Date == "" {
			return validationErrorf("calendar_date", "service_id and date are required")
		}

		exceptionType := 1
		if parsed, err := strconv.Atoi(strings.TrimSpace(record.ExceptionType)); err == nil && (parsed == 1 || parsed == 2) {
			exceptionType = parsed
		}

		serviceID, known := session.serviceIDs[record.ServiceID]
		if !known {
			if session.hasCalendarFile {
				return validationErrorf("calendar_date", "unknown service %s", record.ServiceID)
			}

			// No calendar file: the exception date implies the service.
			serviceID = len(session.serviceIDs) + 1
			session.serviceIDs[record.ServiceID] = serviceID
			err := calendarFiller.add([]interface{}{
				record.ServiceID, 0, 0, 0, 0, 0, 0, 0, "", "", 0, maskName(0),
			})
			if err != nil {
				return err
			}
		}

		return filler.add([]interface{}{serviceID, record.Date, exceptionType})
	})
	if err != nil {
		return err
	}
	if err := filler.flush(); err != nil {
		return err
	}
	if err := calendarFiller.flush(); err != nil {
		return err
	}

	session.notifier.Progress(fmt.Sprintf("Imported %d calendar dates", filler.added))
	return nil
}

func (session *ImportSession) stageTrips(source *feedSource) error {
	reader, exists, err := source.Open("trips.txt")
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	defer reader.Close()

	filler := newTableFiller(session.db, session.stagingTable(tables.Trips), tables.Trips.InsertColumns())

	err = streamRecords(reader, func(record *TripRecord) error {
		if record.ID == "" {
			return validationErrorf("trip", "trip_id is required")
		}

		routeID, known := session.routeIDs[record.RouteID]
		if !known {
			return validationErrorf("trip", "trip %s references unknown route %s", record.ID, record.RouteID)
		}

		serviceID, known := session.serviceIDs[record.ServiceID]
		if !known {
			return validationErrorf("trip", "trip %s references unknown service %s", record.ID, record.ServiceID)
		}

		shapeID := 0
		if record.ShapeID != "" {
			shapeID, known = session.shapeIDs[record.ShapeID]
			if !known {
				return validationErrorf("trip", "trip %s references unknown shape %s", record.ID, record.ShapeID)
			}
		}

		directionID, valid := parseEnum(record.DirectionID, 2, 0)
		if !valid {
			return validationErrorf("trip", "trip %s has invalid direction_id %s", record.ID, record.DirectionID)
		}

		wheelchairAccessible, valid := parseEnum(record.WheelchairAccessible, 3, 0)
		if !valid {
			return validationErrorf("trip", "trip %s has invalid wheelchair_accessible %s", record.ID, record.WheelchairAccessible)
		}

		bikesAllowed, valid := parseEnum(record.BikesAllowed, 3, 0)
		if !valid {
			return validationErrorf("trip", "trip %s has invalid bikes_allowed %s", record.ID, record.BikesAllowed)
		}

		internalID := len(session.tripIDs) + 1
		session.tripIDs[record.ID] = internalID
		session.trips[internalID] = &tripInfo{
			routeID:     routeID,
			directionID: directionID,
			shapeID:     shapeID,
			headsign:    record.Headsign,
		}

		return filler.add([]interface{}{
			record.ID, routeID, serviceID, shapeID, record.Headsign,
			record.ShortName, directionID, record.BlockID,
			wheelchairAccessible, bikesAllowed, session.routeTypes[routeID],
		})
	})
	if err != nil {
		return err
	}
	if err := filler.flush(); err != nil {
		return err
	}

	session.notifier.Progress(fmt.Sprintf("Imported %d trips", filler.added))
	return nil
}

func (session *ImportSession) stageStopTimes(source *feedSource) error {
	reader, exists, err := source.Open("stop_times.txt")
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	defer reader.Close()

	filler := newTableFiller(session.db, session.stagingTable(tables.StopTimes), tables.StopTimes.InsertColumns())

	err = streamRecords(reader, func(record *StopTimeRecord) error {
		tripID, known := session.tripIDs[record.TripID]
		if !known {
			return validationErrorf("stop_time", "stop time references unknown trip %s", record.TripID)
		}

		stopID, known := session.stopIDs[record.StopID]
		if !known {
			return validationErrorf("stop_time", "trip %s references unknown stop %s", record.TripID, record.StopID)
		}

		sequence, err := strconv.Atoi(strings.TrimSpace(record.StopSequence))
		if err != nil {
			return validationErrorf("stop_time", "trip %s has non-integer stop_sequence %q", record.TripID, record.StopSequence)
		}

		arrivalTime := record.ArrivalTime
		departureTime := record.DepartureTime
		if arrivalTime == "" {
			arrivalTime = departureTime
		}
		if departureTime == "" {
			departureTime = arrivalTime
		}
		if arrivalTime == "" {
			return validationErrorf("stop_time", "trip %s stop %s has no times", record.TripID, record.StopID)
		}

		arrivalHMS, err := geom.ParseHMS(arrivalTime)
		if err != nil {
			return validationErrorf("stop_time", "trip %s has invalid arrival_time %q", record.TripID, arrivalTime)
		}
		departureHMS, err := geom.ParseHMS(departureTime)
		if err != nil {
			return validationErrorf("stop_time", "trip %s has invalid departure_time %q", record.TripID, departureTime)
		}
		if arrivalHMS > departureHMS {
			return validationErrorf("stop_time", "trip %s departs stop %s before it arrives", record.TripID, record.StopID)
		}

		pickupType, valid := parseEnum(record.PickupType, 4, 0)
		if !valid {
			return validationErrorf("stop_time", "trip %s has invalid pickup_type %s", record.TripID, record.PickupType)
		}
		dropOffType, valid := parseEnum(record.DropOffType, 4, 0)
		if !valid {
			return validationErrorf("stop_time", "trip %s has invalid drop_off_type %s", record.TripID, record.DropOffType)
		}
		timepoint, valid := parseEnum(record.Timepoint, 2, 1)
		if !valid {
			return validationErrorf("stop_time", "trip %s has invalid timepoint %s", record.TripID, record.Timepoint)
		}

		session.stopTimesByTrip[tripID] = append(session.stopTimesByTrip[tripID], stopTimeEntry{
			stopID:    stopID,
			sequence:  sequence,
			arrival:   arrivalHMS,
			departure: departureHMS,
			headsign:  record.StopHeadsign,
			pickup:    pickupType,
			dropOff:   dropOffType,
			timepoint: timepoint,
		})

		return filler.add([]interface{}{
			tripID, stopID, sequence, arrivalTime, departureTime,
			arrivalHMS, departureHMS, record.StopHeadsign,
			pickupType, dropOffType, timepoint,
		})
	})
	if err != nil {
		return err
	}
	if err := filler.flush(); err != nil {
		return err
	}

	session.notifier.Progress(fmt.Sprintf("Imported %d stop times", filler.added))
	return nil
}
