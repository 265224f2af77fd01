package tables

import "fmt"

// Generation naming contract. Readers resolve the working generation by
// name, so these formats are part of the external interface.

func StagingName(agencyID int, table string) string {
	return fmt.Sprintf("%d_staging_%s", agencyID, table)
}

func WorkingName(agencyID int, table string) string {
	return fmt.Sprintf("%d_working_%s", agencyID, table)
}

func BackupName(agencyID int, table string) string {
	return fmt.Sprintf("%d_backup_%s", agencyID, table)
}

// PublishedName takes the snapshot date as YYYYMMDD.
func PublishedName(agencyID int, date string, table string) string {
	return fmt.Sprintf("%d_published_%s_%s", agencyID, date, table)
}

// PublishedDatesName is the per-agency registry of snapshot dates. It has a
// single generation.
func PublishedDatesName(agencyID int) string {
	return fmt.Sprintf("%d_%s", agencyID, PublishedDates.Name)
}
