package dataimporter

import (
	"encoding/json"
	"time"

	"github.com/transitgrid/transitgrid/pkg/database"
	"github.com/transitgrid/transitgrid/pkg/tables"
)

// writeCurrentInfo aggregates the run's counters and bounding extent into
// the single summary row readers use to describe the working set.
func (session *ImportSession) writeCurrentInfo() error {
	extentJSON, err := json.Marshal(session.extent)
	if err != nil {
		return err
	}

	err = database.InsertBatch(session.db,
		session.stagingTable(tables.CurrentInfo),
		tables.CurrentInfo.InsertColumns(),
		[][]interface{}{{
			len(session.agencyIDs),
			len(session.serviceIDs),
			len(session.routeIDs),
			len(session.stopIDs),
			len(session.tripIDs),
			len(session.sequenceKeys),
			len(session.distanceKeys),
			len(session.offsetKeys),
			len(session.shapeIDs),
			string(extentJSON),
			time.Now().UTC().Format(time.RFC3339),
		}})
	if err != nil {
		return err
	}

	session.notifier.Progress("Derived current info")
	return nil
}
