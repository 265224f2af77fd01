package tables

import (
	"fmt"
	"strings"

	"github.com/transitgrid/transitgrid/pkg/database"
)

type Column struct {
	Name string
	Type string
}

type Spec struct {
	Name    string
	Columns []Column
	// Indexes lists single-column lookup indexes.
	Indexes []string
}

var Agency = Spec{
	Name: "agency",
	Columns: []Column{
		{"id", "INTEGER PRIMARY KEY"},
		{"agency_id", "TEXT"},
		{"agency_name", "TEXT"},
		{"agency_url", "TEXT"},
		{"agency_timezone", "TEXT"},
		{"agency_lang", "TEXT"},
		{"agency_phone", "TEXT"},
		{"agency_fare_url", "TEXT"},
		{"agency_email", "TEXT"},
	},
}

var Routes = Spec{
	Name: "routes",
	Columns: []Column{
		{"id", "INTEGER PRIMARY KEY"},
		{"route_id", "TEXT"},
		{"agency_id", "INTEGER"},
		{"route_short_name", "TEXT"},
		{"route_long_name", "TEXT"},
		{"route_desc", "TEXT"},
		{"route_type", "INTEGER"},
		{"route_url", "TEXT"},
		{"route_color", "TEXT"},
		{"route_text_color", "TEXT"},
		{"route_sort_order", "INTEGER"},
	},
	Indexes: []string{"route_id"},
}

var Stops = Spec{
	Name: "stops",
	Columns: []Column{
		{"id", "INTEGER PRIMARY KEY"},
		{"stop_id", "TEXT"},
		{"stop_code", "TEXT"},
		{"stop_name", "TEXT"},
		{"stop_desc", "TEXT"},
		{"stop_lat", "REAL"},
		{"stop_lon", "REAL"},
		{"zone_id", "TEXT"},
		{"stop_url", "TEXT"},
		{"location_type", "INTEGER"},
		{"parent_station", "TEXT"},
		{"stop_timezone", "TEXT"},
		{"wheelchair_boarding", "INTEGER"},
	},
	Indexes: []string{"stop_id"},
}

var Shapes = Spec{
	Name: "shapes",
	Columns: []Column{
		{"id", "INTEGER PRIMARY KEY"},
		{"shape_id", "INTEGER"},
		{"shape_pt_lat", "REAL"},
		{"shape_pt_lon", "REAL"},
		{"shape_pt_sequence", "INTEGER"},
		{"shape_dist_traveled", "REAL"},
	},
	Indexes: []string{"shape_id"},
}

var Calendar = Spec{
	Name: "calendar",
	Columns: []Column{
		{"id", "INTEGER PRIMARY KEY"},
		{"service_id", "TEXT"},
		{"monday", "INTEGER"},
		{"tuesday", "INTEGER"},
		{"wednesday", "INTEGER"},
		{"thursday", "INTEGER"},
		{"friday", "INTEGER"},
		{"saturday", "INTEGER"},
		{"sunday", "INTEGER"},
		{"start_date", "TEXT"},
		{"end_date", "TEXT"},
		{"wd_mask", "INTEGER"},
		{"mask_name", "TEXT"},
	},
	Indexes: []string{"service_id"},
}

var CalendarDates = Spec{
	Name: "calendar_dates",
	Columns: []Column{
		{"id", "INTEGER PRIMARY KEY"},
		{"service_id", "INTEGER"},
		{"date", "TEXT"},
		{"exception_type", "INTEGER"},
	},
	Indexes: []string{"service_id"},
}

var Trips = Spec{
	Name: "trips",
	Columns: []Column{
		{"id", "INTEGER PRIMARY KEY"},
		{"trip_id", "TEXT"},
		{"route_id", "INTEGER"},
		{"service_id", "INTEGER"},
		{"shape_id", "INTEGER"},
		{"trip_headsign", "TEXT"},
		{"trip_short_name", "TEXT"},
		{"direction_id", "INTEGER"},
		{"block_id", "TEXT"},
		{"wheelchair_accessible", "INTEGER"},
		{"bikes_allowed", "INTEGER"},
		{"route_type", "INTEGER"},
	},
	Indexes: []string{"trip_id", "route_id"},
}

var StopTimes = Spec{
	Name: "stop_times",
	Columns: []Column{
		{"id", "INTEGER PRIMARY KEY"},
		{"trip_id", "INTEGER"},
		{"stop_id", "INTEGER"},
		{"stop_sequence", "INTEGER"},
		{"arrival_time", "TEXT"},
		{"departure_time", "TEXT"},
		{"arrival_hms", "INTEGER"},
		{"departure_hms", "INTEGER"},
		{"stop_headsign", "TEXT"},
		{"pickup_type", "INTEGER"},
		{"drop_off_type", "INTEGER"},
		{"timepoint", "INTEGER"},
	},
	Indexes: []string{"trip_id"},
}

var ShapesCompressed = Spec{
	Name: "shapes_compressed",
	Columns: []Column{
		{"id", "INTEGER PRIMARY KEY"},
		{"shape_id", "INTEGER"},
		{"shape_coords", "TEXT"},
		{"shape_dists", "TEXT"},
		{"orig_coords", "TEXT"},
		{"orig_dists", "TEXT"},
	},
	Indexes: []string{"shape_id"},
}

var StopSequences = Spec{
	Name: "stop_sequences",
	Columns: []Column{
		{"id", "INTEGER PRIMARY KEY"},
		{"stop_ids", "TEXT"},
		{"trip_headsign", "TEXT"},
	},
}

var StopDistances = Spec{
	Name: "stop_distances",
	Columns: []Column{
		{"id", "INTEGER PRIMARY KEY"},
		{"stop_dists", "TEXT"},
	},
}

var StopHMSOffsets = Spec{
	Name: "stop_hms_offsets",
	Columns: []Column{
		{"id", "INTEGER PRIMARY KEY"},
		{"arrival_offsets", "TEXT"},
		{"departure_offsets", "TEXT"},
		{"pickup_types", "TEXT"},
		{"drop_off_types", "TEXT"},
		{"timepoints", "TEXT"},
		{"stop_headsigns", "TEXT"},
	},
}

var TripsSseqs = Spec{
	Name: "trips_sseqs",
	Columns: []Column{
		{"id", "INTEGER PRIMARY KEY"},
		{"trip_id", "INTEGER"},
		{"sseq_id", "INTEGER"},
		{"sdist_id", "INTEGER"},
		{"soffset_id", "INTEGER"},
	},
	Indexes: []string{"trip_id"},
}

var RoutesSseqs = Spec{
	Name: "routes_sseqs",
	Columns: []Column{
		{"id", "INTEGER PRIMARY KEY"},
		{"route_id", "INTEGER"},
		{"direction_id", "INTEGER"},
		{"sseq_id", "INTEGER"},
		{"shape_id", "INTEGER"},
		{"trip_count", "INTEGER"},
	},
	Indexes: []string{"route_id"},
}

var RoutesShapes = Spec{
	Name: "routes_shapes",
	Columns: []Column{
		{"id", "INTEGER PRIMARY KEY"},
		{"route_id", "INTEGER"},
		{"direction_id", "INTEGER"},
		{"shape_id", "INTEGER"},
	},
	Indexes: []string{"route_id"},
}

var StopsSseqs = Spec{
	Name: "stops_sseqs",
	Columns: []Column{
		{"id", "INTEGER PRIMARY KEY"},
		{"stop_id", "INTEGER"},
		{"sseq_id", "INTEGER"},
	},
	Indexes: []string{"stop_id"},
}

var RoutesDirections = Spec{
	Name: "routes_directions",
	Columns: []Column{
		{"id", "INTEGER PRIMARY KEY"},
		{"route_id", "INTEGER"},
		{"direction_id", "INTEGER"},
		{"gtfs_direction", "TEXT"},
		{"stop_count", "INTEGER"},
		{"sseq_id", "INTEGER"},
		{"shape_coords", "TEXT"},
	},
	Indexes: []string{"route_id"},
}

var RoutesShape = Spec{
	Name: "routes_shape",
	Columns: []Column{
		{"id", "INTEGER PRIMARY KEY"},
		{"route_id", "INTEGER"},
		{"shape_coords", "TEXT"},
	},
	Indexes: []string{"route_id"},
}

var CurrentInfo = Spec{
	Name: "current_info",
	Columns: []Column{
		{"id", "INTEGER PRIMARY KEY"},
		{"n_agencies", "INTEGER"},
		{"n_services", "INTEGER"},
		{"n_routes", "INTEGER"},
		{"n_stops", "INTEGER"},
		{"n_trips", "INTEGER"},
		{"n_sequences", "INTEGER"},
		{"n_distances", "INTEGER"},
		{"n_offsets", "INTEGER"},
		{"n_shapes", "INTEGER"},
		{"extent", "TEXT"},
		{"published_at", "TEXT"},
	},
}

var PublishedDates = Spec{
	Name: "agency_published",
	Columns: []Column{
		{"id", "INTEGER PRIMARY KEY"},
		{"publish_date", "TEXT"},
	},
}

// All lists every generationed table in dependency order.
var All = []Spec{
	Agency, Routes, Stops, Shapes, Calendar, CalendarDates, Trips, StopTimes,
	ShapesCompressed, StopSequences, StopDistances, StopHMSOffsets,
	TripsSseqs, RoutesSseqs, RoutesShapes, StopsSseqs, RoutesDirections,
	RoutesShape, CurrentInfo,
}

// CompareSet is the no-op probe set: tables whose content decides whether
// two generations are identical. Excludes the bulk raw tables whose content
// is fully reflected in the derived artifacts, and current_info (its publish
// timestamp always differs).
var CompareSet = []Spec{
	Routes, Calendar, CalendarDates,
	ShapesCompressed, StopSequences, StopDistances, StopHMSOffsets,
	TripsSseqs, RoutesSseqs, RoutesShapes, StopsSseqs, RoutesDirections,
}

// PublishSet is copied into dated snapshots: everything except the two bulk
// raw tables readers never query from a snapshot.
var PublishSet = []Spec{
	Agency, Routes, Stops, Calendar, CalendarDates, Trips,
	ShapesCompressed, StopSequences, StopDistances, StopHMSOffsets,
	TripsSseqs, RoutesSseqs, RoutesShapes, StopsSseqs, RoutesDirections,
	RoutesShape, CurrentInfo,
}

// InsertColumns lists the spec's columns without the autoincrement id.
func (spec Spec) InsertColumns() []string {
	columns := make([]string, 0, len(spec.Columns)-1)
	for _, column := range spec.Columns {
		if column.Name == "id" {
			continue
		}
		columns = append(columns, column.Name)
	}
	return columns
}

// CompareColumns lists the columns taking part in the symmetric-difference
// probe. The id column is excluded so row identity is content based.
func (spec Spec) CompareColumns() []string {
	return spec.InsertColumns()
}

// AllColumns lists every column including the id. Derived tables carry
// session-assigned ids that must survive a snapshot copy unchanged.
func (spec Spec) AllColumns() []string {
	columns := make([]string, len(spec.Columns))
	for i, column := range spec.Columns {
		columns[i] = column.Name
	}
	return columns
}

// CreateSQL renders the CREATE TABLE and CREATE INDEX statements for this
// spec under the given generation table name.
func (spec Spec) CreateSQL(tableName string) []string {
	columnDefs := make([]string, len(spec.Columns))
	for i, column := range spec.Columns {
		columnDefs[i] = fmt.Sprintf("%s %s", database.QuoteIdentifier(column.Name), column.Type)
	}

	statements := []string{
		fmt.Sprintf("CREATE TABLE %s (%s)", database.QuoteIdentifier(tableName), strings.Join(columnDefs, ", ")),
	}

	for _, indexColumn := range spec.Indexes {
		statements = append(statements, fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			database.QuoteIdentifier(IndexName(tableName, indexColumn)),
			database.QuoteIdentifier(tableName),
			database.QuoteIdentifier(indexColumn)))
	}

	return statements
}

func IndexName(tableName string, column string) string {
	return fmt.Sprintf("%s_%s_idx", tableName, column)
}
