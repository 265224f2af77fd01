package notify

import (
	"fmt"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/kr/pretty"
	"github.com/rs/zerolog/log"
	"github.com/transitgrid/transitgrid/pkg/redis_client"
)

const numConsumers = 2

// StartConsumers drains the progress queue and dumps events for observers.
func StartConsumers() {
	log.Info().Msg("Starting progress consumers")

	queue, err := redis_client.QueueConnection.OpenQueue(progressQueueName)
	if err != nil {
		panic(err)
	}
	if err := queue.StartConsuming(numConsumers*200, 1*time.Second); err != nil {
		panic(err)
	}

	for i := 0; i < numConsumers; i++ {
		go startProgressConsumer(queue, i)
	}
}

func startProgressConsumer(queue rmq.Queue, id int) {
	log.Info().Msgf("Starting progress consumer %d", id)

	if _, err := queue.AddBatchConsumer(fmt.Sprintf("progress-queue-%d", id), 20, 2*time.Second, NewBatchConsumer(id)); err != nil {
		panic(err)
	}
}

type BatchConsumer struct {
	id int
}

func NewBatchConsumer(id int) *BatchConsumer {
	return &BatchConsumer{id: id}
}

func (consumer *BatchConsumer) Consume(batch rmq.Deliveries) {
	payloads := batch.Payloads()

	for _, payload := range payloads {
		pretty.Println(string(payload))
	}

	if ackErrors := batch.Ack(); len(ackErrors) > 0 {
		for _, err := range ackErrors {
			log.Fatal().Err(err).Msg("Failed to consume progress event")
		}
	}
}
