package versions

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/transitgrid/transitgrid/pkg/database"
	"github.com/transitgrid/transitgrid/pkg/tables"
)

// Manager drives one agency's table generations through the
// staging -> working -> published(date) lifecycle. The backup generation
// only exists transiently inside a promotion.
type Manager struct {
	DB       *sql.DB
	AgencyID int
}

// NoOpError signals that a run produced no changes. It is informational,
// not a failure.
type NoOpError struct {
	Message string
}

func (e *NoOpError) Error() string {
	return e.Message
}

func FormatDate(t time.Time) string {
	return t.Format("20060102")
}

// CreateStaging drops any leftover staging generation and creates a fresh
// empty one.
func (m *Manager) CreateStaging() error {
	if err := m.DiscardStaging(); err != nil {
		return err
	}

	for _, spec := range tables.All {
		for _, statement := range spec.CreateSQL(tables.StagingName(m.AgencyID, spec.Name)) {
			if _, err := m.DB.Exec(statement); err != nil {
				return fmt.Errorf("creating staging %s: %w", spec.Name, err)
			}
		}
	}

	return nil
}

// DiscardStaging removes the staging and backup generations. It is the
// rollback path and must succeed on a half-built generation.
func (m *Manager) DiscardStaging() error {
	for _, spec := range tables.All {
		if err := database.DropTable(m.DB, tables.StagingName(m.AgencyID, spec.Name)); err != nil {
			return err
		}
		if err := database.DropTable(m.DB, tables.BackupName(m.AgencyID, spec.Name)); err != nil {
			return err
		}
	}
	return nil
}

// StagingMatchesWorking probes the compare set for any content difference.
// A missing working generation always counts as a difference.
func (m *Manager) StagingMatchesWorking() (bool, error) {
	for _, spec := range tables.CompareSet {
		workingName := tables.WorkingName(m.AgencyID, spec.Name)

		exists, err := database.TableExists(m.DB, workingName)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, nil
		}

		identical, err := database.TablesIdentical(m.DB,
			tables.StagingName(m.AgencyID, spec.Name), workingName, spec.CompareColumns())
		if err != nil {
			return false, err
		}
		if !identical {
			log.Debug().Str("table", spec.Name).Msg("Staging differs from working")
			return false, nil
		}
	}

	return true, nil
}

// PromoteStaging swaps the staging generation into working as one atomic
// operation: working moves aside to backup, staging renames to working and
// its indexes are renamed to match, then the backup is dropped.
func (m *Manager) PromoteStaging() error {
	var pairs [][2]string
	var extra []string

	for _, spec := range tables.All {
		stagingName := tables.StagingName(m.AgencyID, spec.Name)
		workingName := tables.WorkingName(m.AgencyID, spec.Name)
		backupName := tables.BackupName(m.AgencyID, spec.Name)

		workingExists, err := database.TableExists(m.DB, workingName)
		if err != nil {
			return err
		}

		if workingExists {
			pairs = append(pairs, [2]string{workingName, backupName})
			// The outgoing generation's indexes keep their names across the
			// rename and would collide with the incoming ones.
			for _, column := range spec.Indexes {
				extra = append(extra, fmt.Sprintf(`DROP INDEX IF EXISTS %s`,
					database.QuoteIdentifier(tables.IndexName(workingName, column))))
			}
		}

		pairs = append(pairs, [2]string{stagingName, workingName})
		for _, column := range spec.Indexes {
			extra = append(extra, fmt.Sprintf(`DROP INDEX IF EXISTS %s`,
				database.QuoteIdentifier(tables.IndexName(stagingName, column))))
			extra = append(extra, fmt.Sprintf(`CREATE INDEX %s ON %s (%s)`,
				database.QuoteIdentifier(tables.IndexName(workingName, column)),
				database.QuoteIdentifier(workingName),
				database.QuoteIdentifier(column)))
		}
	}

	if err := database.RenameTables(m.DB, pairs, extra...); err != nil {
		return fmt.Errorf("promoting staging: %w", err)
	}

	for _, spec := range tables.All {
		if err := database.DropTable(m.DB, tables.BackupName(m.AgencyID, spec.Name)); err != nil {
			return err
		}
	}

	return nil
}

// ensurePublishedDatesTable creates the per-agency snapshot-date registry
// on first use.
func (m *Manager) ensurePublishedDatesTable() error {
	name := tables.PublishedDatesName(m.AgencyID)

	exists, err := database.TableExists(m.DB, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	for _, statement := range tables.PublishedDates.CreateSQL(name) {
		if _, err := m.DB.Exec(statement); err != nil {
			return err
		}
	}
	return nil
}

// LatestPublishedDate returns the most recent snapshot date, or "" when the
// agency has never published.
func (m *Manager) LatestPublishedDate() (string, error) {
	if err := m.ensurePublishedDatesTable(); err != nil {
		return "", err
	}

	row := m.DB.QueryRow(fmt.Sprintf(`SELECT MAX(publish_date) FROM %s`,
		database.QuoteIdentifier(tables.PublishedDatesName(m.AgencyID))))

	var date sql.NullString
	if err := row.Scan(&date); err != nil {
		return "", err
	}
	if !date.Valid {
		return "", nil
	}
	return date.String, nil
}

func (m *Manager) recordPublishedDate(date string) error {
	if err := m.ensurePublishedDatesTable(); err != nil {
		return err
	}

	name := tables.PublishedDatesName(m.AgencyID)

	row := m.DB.QueryRow(fmt.Sprintf(`SELECT 1 FROM %s WHERE publish_date = ?`,
		database.QuoteIdentifier(name)), date)
	var one int
	err := row.Scan(&one)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}

	return database.InsertBatch(m.DB, name, []string{"publish_date"}, [][]interface{}{{date}})
}

// WorkingMatchesPublished probes the compare set against a dated snapshot.
func (m *Manager) WorkingMatchesPublished(date string) (bool, error) {
	for _, spec := range tables.CompareSet {
		identical, err := database.TablesIdentical(m.DB,
			tables.WorkingName(m.AgencyID, spec.Name),
			tables.PublishedName(m.AgencyID, date, spec.Name),
			spec.CompareColumns())
		if err != nil {
			return false, err
		}
		if !identical {
			return false, nil
		}
	}
	return true, nil
}

// Publish copies the working generation into a dated snapshot. When the
// working set is identical to the latest snapshot it returns a NoOpError
// and changes nothing. A same-day republish replaces the existing snapshot
// through a staging copy and an atomic rename swap, never in place.
func (m *Manager) Publish(date string) error {
	latest, err := m.LatestPublishedDate()
	if err != nil {
		return err
	}

	if latest != "" {
		identical, err := m.WorkingMatchesPublished(latest)
		if err != nil {
			return err
		}
		if identical {
			return &NoOpError{Message: "no changes were detected"}
		}
	}

	sameDayExists := false
	if latest == date {
		sameDayExists = true
	}

	if sameDayExists {
		return m.republishSameDay(date)
	}

	if err := m.copyWorkingTo(func(spec tables.Spec) string {
		return tables.PublishedName(m.AgencyID, date, spec.Name)
	}); err != nil {
		// No prior snapshot existed for this date, so drop the partial set.
		m.dropSnapshotTables(func(spec tables.Spec) string {
			return tables.PublishedName(m.AgencyID, date, spec.Name)
		})
		return fmt.Errorf("publishing snapshot %s: %w", date, err)
	}

	return m.recordPublishedDate(date)
}

// republishSameDay rebuilds today's snapshot behind staging names and
// rename-swaps it over the existing one with a transient backup.
func (m *Manager) republishSameDay(date string) error {
	stagingFor := func(spec tables.Spec) string {
		return tables.StagingName(m.AgencyID, "publish_"+spec.Name)
	}

	for _, spec := range tables.PublishSet {
		if err := database.DropTable(m.DB, stagingFor(spec)); err != nil {
			return err
		}
	}

	if err := m.copyWorkingTo(func(spec tables.Spec) string { return stagingFor(spec) }); err != nil {
		m.dropSnapshotTables(stagingFor)
		return fmt.Errorf("staging snapshot %s: %w", date, err)
	}

	var pairs [][2]string
	var extra []string
	for _, spec := range tables.PublishSet {
		publishedName := tables.PublishedName(m.AgencyID, date, spec.Name)
		pairs = append(pairs, [2]string{publishedName, tables.BackupName(m.AgencyID, spec.Name)})
		pairs = append(pairs, [2]string{stagingFor(spec), publishedName})

		// Indexes keep their names across the renames: the outgoing
		// snapshot's indexes drop with the backup and the staged copy's are
		// recreated under the published names.
		for _, column := range spec.Indexes {
			extra = append(extra, fmt.Sprintf(`DROP INDEX IF EXISTS %s`,
				database.QuoteIdentifier(tables.IndexName(publishedName, column))))
			extra = append(extra, fmt.Sprintf(`DROP INDEX IF EXISTS %s`,
				database.QuoteIdentifier(tables.IndexName(stagingFor(spec), column))))
			extra = append(extra, fmt.Sprintf(`CREATE INDEX %s ON %s (%s)`,
				database.QuoteIdentifier(tables.IndexName(publishedName, column)),
				database.QuoteIdentifier(publishedName),
				database.QuoteIdentifier(column)))
		}
	}

	if err := database.RenameTables(m.DB, pairs, extra...); err != nil {
		m.dropSnapshotTables(stagingFor)
		return fmt.Errorf("swapping snapshot %s: %w", date, err)
	}

	for _, spec := range tables.PublishSet {
		if err := database.DropTable(m.DB, tables.BackupName(m.AgencyID, spec.Name)); err != nil {
			return err
		}
	}

	return m.recordPublishedDate(date)
}

// dropSnapshotTables removes a partially built snapshot set. Drop failures
// are logged rather than returned so they never mask the publish error.
func (m *Manager) dropSnapshotTables(name func(tables.Spec) string) {
	for _, spec := range tables.PublishSet {
		if err := database.DropTable(m.DB, name(spec)); err != nil {
			log.Error().Err(err).Int("agency", m.AgencyID).Str("table", name(spec)).
				Msg("Failed to drop partial snapshot table")
		}
	}
}

// copyWorkingTo copies every publishable table into destination names,
// preserving row ids so derived references stay valid. Snapshots carry the
// same lookup indexes as the working generation.
func (m *Manager) copyWorkingTo(destination func(tables.Spec) string) error {
	for _, spec := range tables.PublishSet {
		destinationName := destination(spec)

		for _, statement := range spec.CreateSQL(destinationName) {
			if _, err := m.DB.Exec(statement); err != nil {
				return err
			}
		}

		if _, err := m.DB.Exec(fmt.Sprintf(`INSERT INTO %s SELECT * FROM %s`,
			database.QuoteIdentifier(destinationName),
			database.QuoteIdentifier(tables.WorkingName(m.AgencyID, spec.Name)))); err != nil {
			return err
		}
	}
	return nil
}
