package hooks

import (
	"context"

	"github.com/apptrail-sh/podrun/internal/model"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

type EventPublisherQueue struct {
	UpdateChan <-chan model.RunUpdate
	publishers []EventPublisher
	done       chan struct{}
}

func NewEventPublisherQueue(updateChan <-chan model.RunUpdate, publishers []EventPublisher) *EventPublisherQueue {
	return &EventPublisherQueue{
		UpdateChan: updateChan,
		publishers: publishers,
		done:       make(chan struct{}),
	}
}

// Loop drains the update channel, fanning each run update out to every
// registered publisher. A publisher failure is logged and does not stop the
// workflow; event delivery is best effort. Loop returns when the channel is
// closed, after which Done is closed.
func (eq *EventPublisherQueue) Loop() {
	ctx := context.Background()
	logger := log.FromContext(ctx)
	defer close(eq.done)

	logger.Info("Event publisher queue started", "publishers", len(eq.publishers))

	for update := range eq.UpdateChan {
		logger.Info("Received run update",
			"namespace", update.Namespace,
			"name", update.Name,
			"stage", update.Stage,
		)

		for _, publisher := range eq.publishers {
			if err := publisher.Publish(ctx, update); err != nil {
				logger.Error(err, "failed to publish run event",
					"namespace", update.Namespace,
					"name", update.Name,
					"stage", update.Stage,
				)
			}
		}
	}
}

// Done is closed once every queued update has been handed to the publishers.
func (eq *EventPublisherQueue) Done() <-chan struct{} {
	return eq.done
}
