package notify

import (
	"encoding/json"
	"sync/atomic"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
	"github.com/transitgrid/transitgrid/pkg/redis_client"
)

const progressQueueName = "agency-progress"

// Event is one progress message of an import or publish run. Order is a
// per-run monotonic counter so observers can re-sequence deliveries.
type Event struct {
	RunID     string `json:"runId"`
	AgencyID  int    `json:"agencyId"`
	Order     int64  `json:"order"`
	Message   string `json:"message"`
	IsWarning bool   `json:"isWarning,omitempty"`
	IsError   bool   `json:"isError,omitempty"`
}

// Notifier delivers progress events for one run. Delivery has no effect on
// pipeline control flow.
type Notifier interface {
	Progress(message string)
	Warning(message string)
	Error(message string)
}

// RunNotifier publishes events to the progress queue when a queue
// connection exists, and always mirrors them to the log.
type RunNotifier struct {
	RunID    string
	AgencyID int

	order atomic.Int64
	queue rmq.Queue
}

func NewRunNotifier(runID string, agencyID int) *RunNotifier {
	notifier := &RunNotifier{RunID: runID, AgencyID: agencyID}

	if redis_client.QueueConnection != nil {
		queue, err := redis_client.QueueConnection.OpenQueue(progressQueueName)
		if err != nil {
			log.Error().Err(err).Msg("Failed to open progress queue")
		} else {
			notifier.queue = queue
		}
	}

	return notifier
}

func (n *RunNotifier) publish(event Event) {
	if n.queue == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal progress event")
		return
	}

	if err := n.queue.PublishBytes(payload); err != nil {
		log.Error().Err(err).Msg("Failed to publish progress event")
	}
}

func (n *RunNotifier) Progress(message string) {
	log.Info().Str("run", n.RunID).Int("agency", n.AgencyID).Msg(message)
	n.publish(Event{RunID: n.RunID, AgencyID: n.AgencyID, Order: n.order.Add(1), Message: message})
}

func (n *RunNotifier) Warning(message string) {
	log.Warn().Str("run", n.RunID).Int("agency", n.AgencyID).Msg(message)
	n.publish(Event{RunID: n.RunID, AgencyID: n.AgencyID, Order: n.order.Add(1), Message: message, IsWarning: true})
}

func (n *RunNotifier) Error(message string) {
	log.Error().Str("run", n.RunID).Int("agency", n.AgencyID).Msg(message)
	n.publish(Event{RunID: n.RunID, AgencyID: n.AgencyID, Order: n.order.Add(1), Message: message, IsError: true})
}
