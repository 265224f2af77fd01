package dataimporter

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/transitgrid/transitgrid/pkg/gate"
	"github.com/transitgrid/transitgrid/pkg/geom"
	"github.com/transitgrid/transitgrid/pkg/notify"
	"github.com/transitgrid/transitgrid/pkg/tables"
	"github.com/transitgrid/transitgrid/pkg/versions"
)

// Config is one import run's parameters.
type Config struct {
	AgencyID int
	FeedPath string

	// AcceptDistance in meters, SimplifyTolerance in projected units;
	// zero values take the defaults.
	AcceptDistance    float64
	SimplifyTolerance float64
}

type shapePoint struct {
	coord       geom.Coord
	sequence    int
	distance    float64
	hasDistance bool
}

type tripInfo struct {
	routeID     int
	directionID int
	shapeID     int
	headsign    string
}

type stopTimeEntry struct {
	stopID    int
	sequence  int
	arrival   int
	departure int
	headsign  string
	pickup    int
	dropOff   int
	timepoint int
}

type compressedShape struct {
	coords         []geom.Coord
	meterDistances []float64

	// stopDistances caches the encoded projected distances per encoded
	// stop-id list, so identical stop patterns project once per shape.
	stopDistances map[string]string
}

type routeDirectionKey struct {
	routeID     int
	directionID int
}

type routeDirectionAccumulator struct {
	sequenceTrips map[int]int
	sequenceShape map[int]int
	sequenceStops map[int]int
	shapeIDs      map[int]bool
}

// ImportSession holds every piece of state scoped to one import run:
// cross-reference indexes built file by file, the dedup caches, the extent
// accumulator and the derivation byproducts. Sessions are never shared.
type ImportSession struct {
	config   Config
	db       *sql.DB
	notifier notify.Notifier
	manager  *versions.Manager

	agencyIDs  map[string]int
	routeIDs   map[string]int
	routeNames map[int]string
	routeTypes map[int]int
	stopIDs    map[string]int
	stopCoords map[int]geom.Coord
	serviceIDs map[string]int
	shapeIDs   map[string]int
	tripIDs    map[string]int

	hasCalendarFile bool
	shapePoints     map[int][]shapePoint
	trips           map[int]*tripInfo
	stopTimesByTrip map[int][]stopTimeEntry

	extent           geom.Extent
	distanceRatio    float64
	hasDistanceRatio bool

	compressedShapes map[int]*compressedShape
	sequenceKeys     map[string]int
	distanceKeys     map[string]int
	offsetKeys       map[string]int

	routeDirections     map[routeDirectionKey]*routeDirectionAccumulator
	backwardProjections int
}

func NewImportSession(db *sql.DB, notifier notify.Notifier, config Config) *ImportSession {
	if config.AcceptDistance == 0 {
		config.AcceptDistance = geom.DefaultAcceptDistance
	}
	if config.SimplifyTolerance == 0 {
		config.SimplifyTolerance = geom.DefaultSimplifyTolerance
	}

	return &ImportSession{
		config:   config,
		db:       db,
		notifier: notifier,
		manager:  &versions.Manager{DB: db, AgencyID: config.AgencyID},

		agencyIDs:  map[string]int{},
		routeIDs:   map[string]int{},
		routeNames: map[int]string{},
		routeTypes: map[int]int{},
		stopIDs:    map[string]int{},
		stopCoords: map[int]geom.Coord{},
		serviceIDs: map[string]int{},
		shapeIDs:   map[string]int{},
		tripIDs:    map[string]int{},

		shapePoints:     map[int][]shapePoint{},
		trips:           map[int]*tripInfo{},
		stopTimesByTrip: map[int][]stopTimeEntry{},

		distanceRatio: 1,

		compressedShapes: map[int]*compressedShape{},
		sequenceKeys:     map[string]int{},
		distanceKeys:     map[string]int{},
		offsetKeys:       map[string]int{},

		routeDirections: map[routeDirectionKey]*routeDirectionAccumulator{},
	}
}

func (session *ImportSession) stagingTable(spec tables.Spec) string {
	return tables.StagingName(session.config.AgencyID, spec.Name)
}

// Import runs the whole pipeline: stage every feed file, derive the
// compressed artifacts, then either discard staging (no changes) or promote
// it to working. Any failure rolls staging back and leaves working alone.
func (session *ImportSession) Import() error {
	session.notifier.Progress("Import started")

	if err := session.manager.CreateStaging(); err != nil {
		return session.fail(err)
	}

	source, err := openFeed(session.config.FeedPath)
	if err != nil {
		return session.fail(err)
	}
	defer source.Close()

	if err := session.stageFiles(source); err != nil {
		return session.fail(err)
	}

	if err := session.deriveCompressedShapes(); err != nil {
		return session.fail(err)
	}
	if err := session.deriveStopSequences(); err != nil {
		return session.fail(err)
	}
	if err := session.deriveRouteDirections(); err != nil {
		return session.fail(err)
	}
	if err := session.writeCurrentInfo(); err != nil {
		return session.fail(err)
	}

	identical, err := session.manager.StagingMatchesWorking()
	if err != nil {
		return session.fail(err)
	}

	if identical {
		session.notifier.Progress("No changes were detected")
		if err := session.manager.DiscardStaging(); err != nil {
			return err
		}
		return &versions.NoOpError{Message: "no changes were detected"}
	}

	if err := session.manager.PromoteStaging(); err != nil {
		return session.fail(err)
	}

	session.notifier.Progress("Import finished")
	return nil
}

// fail is every error exit: surface the error event, drop staging and any
// transient backup, pass the error through.
func (session *ImportSession) fail(err error) error {
	session.notifier.Error(err.Error())

	if discardErr := session.manager.DiscardStaging(); discardErr != nil {
		log.Error().Err(discardErr).Int("agency", session.config.AgencyID).Msg("Failed to discard staging generation")
	}

	return err
}

// Gate shared by every import and publish operation in this process.
var agencyGate = gate.NewGate()

// RunImport wraps a session in the concurrency gate. A held gate rejects
// the run synchronously.
func RunImport(db *sql.DB, config Config) error {
	if !agencyGate.TryBlock(config.AgencyID) {
		return &gate.ConflictError{AgencyID: config.AgencyID}
	}
	defer agencyGate.Unblock(config.AgencyID)

	runID := fmt.Sprintf("import-%d-%d", config.AgencyID, time.Now().UnixNano())
	notifier := notify.NewRunNotifier(runID, config.AgencyID)

	return NewImportSession(db, notifier, config).Import()
}
