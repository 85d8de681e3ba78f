package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub/v2"
	"github.com/apptrail-sh/podrun/internal/model"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// PubSubPublisher sends run events to Google Cloud Pub/Sub
type PubSubPublisher struct {
	client        *pubsub.Client
	publisher     *pubsub.Publisher
	topicPath     string
	clusterID     string
	environment   string
	runnerVersion string
}

// ParseTopicPath parses a full Pub/Sub topic path and returns projectID and topicID.
// Expected format: projects/<project>/topics/<topic>
func ParseTopicPath(topicPath string) (projectID, topicID string, err error) {
	parts := strings.Split(topicPath, "/")
	if len(parts) != 4 || parts[0] != "projects" || parts[2] != "topics" {
		return "", "", fmt.Errorf("invalid topic path %q: expected format projects/<project>/topics/<topic>", topicPath)
	}
	return parts[1], parts[3], nil
}

// NewPubSubPublisher creates a new Google Cloud Pub/Sub publisher
//
// Authentication is handled via Application Default Credentials (ADC):
//   - Workload Identity (GKE): Auto-detected from metadata server (recommended)
//   - Service Account JSON key: Set GOOGLE_APPLICATION_CREDENTIALS env var
//   - Default credentials: gcloud auth application-default login
func NewPubSubPublisher(ctx context.Context, topicPath, clusterID, environment, runnerVersion string) (*PubSubPublisher, error) {
	projectID, topicID, err := ParseTopicPath(topicPath)
	if err != nil {
		return nil, err
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	// Enable message ordering to guarantee stage events for the same run
	// are delivered in the order they were published.
	// The subscription must also have message ordering enabled.
	publisher := client.Publisher(topicID)
	publisher.EnableMessageOrdering = true

	return &PubSubPublisher{
		client:        client,
		publisher:     publisher,
		topicPath:     topicPath,
		clusterID:     clusterID,
		environment:   environment,
		runnerVersion: runnerVersion,
	}, nil
}

// Publish sends a run event to Google Cloud Pub/Sub
func (p *PubSubPublisher) Publish(ctx context.Context, update model.RunUpdate) error {
	logger := log.FromContext(ctx)

	event := model.NewRunEventPayload(update, p.clusterID, p.environment, p.runnerVersion)

	data, err := json.Marshal(event)
	if err != nil {
		logger.Error(err, "Failed to marshal run event",
			"eventID", event.EventID,
			"namespace", update.Namespace,
			"name", update.Name,
		)
		return fmt.Errorf("failed to marshal run event: %w", err)
	}

	// Ordering key keeps the stage events of one run in sequence.
	// Format: cluster/namespace/run_id
	orderingKey := fmt.Sprintf("%s/%s/%s", p.clusterID, update.Namespace, update.RunID)

	logger.Info("Publishing run event to Google Pub/Sub",
		"topic", p.topicPath,
		"eventID", event.EventID,
		"orderingKey", orderingKey,
		"namespace", update.Namespace,
		"name", update.Name,
		"stage", update.Stage,
	)

	attributes := map[string]string{
		"cluster_name":  p.clusterID,
		"namespace":     update.Namespace,
		"workload_name": update.Name,
		"run_id":        update.RunID,
		"stage":         string(update.Stage),
		"event_type":    "pod_run",
	}
	if p.environment != "" {
		attributes["environment"] = p.environment
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attributes,
		OrderingKey: orderingKey,
	})

	msgID, err := result.Get(ctx)
	if err != nil {
		logger.Error(err, "Failed to publish run event to Pub/Sub",
			"topic", p.topicPath,
			"eventID", event.EventID,
		)
		return fmt.Errorf("failed to publish run event to pubsub: %w", err)
	}

	logger.Info("Run event successfully published to Google Pub/Sub",
		"topic", p.topicPath,
		"eventID", event.EventID,
		"messageID", msgID,
		"namespace", update.Namespace,
		"name", update.Name,
	)

	return nil
}

// Stop stops the publisher and closes the client
func (p *PubSubPublisher) Stop() {
	if p.publisher != nil {
		p.publisher.Stop()
	}
	if p.client != nil {
		_ = p.client.Close()
	}
}
