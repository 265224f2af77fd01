package dataimporter

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/transitgrid/transitgrid/pkg/database"
	"github.com/transitgrid/transitgrid/pkg/gate"
	"github.com/transitgrid/transitgrid/pkg/notify"
	"github.com/transitgrid/transitgrid/pkg/tables"
	"github.com/transitgrid/transitgrid/pkg/versions"
)

// RunPublish copies an agency's working generation into a dated snapshot,
// behind the same per-agency gate as imports.
func RunPublish(db *sql.DB, agencyID int) error {
	if !agencyGate.TryBlock(agencyID) {
		return &gate.ConflictError{AgencyID: agencyID}
	}
	defer agencyGate.Unblock(agencyID)

	runID := fmt.Sprintf("publish-%d-%d", agencyID, time.Now().UnixNano())
	notifier := notify.NewRunNotifier(runID, agencyID)

	notifier.Progress("Publish started")

	exists, err := database.TableExists(db, tables.WorkingName(agencyID, tables.Routes.Name))
	if err != nil {
		notifier.Error(err.Error())
		return err
	}
	if !exists {
		err := fmt.Errorf("agency %d has no working data set to publish", agencyID)
		notifier.Error(err.Error())
		return err
	}

	manager := &versions.Manager{DB: db, AgencyID: agencyID}
	date := versions.FormatDate(time.Now())

	err = manager.Publish(date)

	var noOp *versions.NoOpError
	if errors.As(err, &noOp) {
		notifier.Progress(noOp.Message)
		return err
	}
	if err != nil {
		notifier.Error(err.Error())
		return err
	}

	notifier.Progress(fmt.Sprintf("Published snapshot %s", date))
	return nil
}
