package controlplane

import (
	"context"
	"fmt"
	"time"

	"github.com/apptrail-sh/podrun/internal/model"
	"resty.dev/v3"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// HTTPPublisher sends run events to the AppTrail Control Plane via HTTP
type HTTPPublisher struct {
	client        *resty.Client
	endpoint      string
	clusterID     string
	environment   string
	runnerVersion string
}

// NewHTTPPublisher creates a new HTTP publisher for the control plane
func NewHTTPPublisher(endpoint, clusterID, environment, runnerVersion string) *HTTPPublisher {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second)

	return &HTTPPublisher{
		client:        client,
		endpoint:      endpoint,
		clusterID:     clusterID,
		environment:   environment,
		runnerVersion: runnerVersion,
	}
}

// Publish sends a run event to the control plane
func (p *HTTPPublisher) Publish(ctx context.Context, update model.RunUpdate) error {
	logger := log.FromContext(ctx)

	event := model.NewRunEventPayload(update, p.clusterID, p.environment, p.runnerVersion)

	logger.Info("Publishing run event to control plane",
		"endpoint", p.endpoint,
		"eventID", event.EventID,
		"runID", event.RunID,
		"namespace", event.Workload.Namespace,
		"name", event.Workload.Name,
		"stage", event.Stage,
	)

	var errorResponse map[string]interface{}
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(event).
		SetError(&errorResponse).
		Post(p.endpoint)

	if err != nil {
		logger.Error(err, "Failed to send run event to control plane",
			"endpoint", p.endpoint,
			"eventID", event.EventID,
		)
		return fmt.Errorf("failed to send run event to control plane: %w", err)
	}

	if !resp.IsSuccess() {
		logger.Error(nil, "Control plane returned error",
			"statusCode", resp.StatusCode(),
			"status", resp.Status(),
			"error", errorResponse,
			"body", resp.String(),
			"endpoint", p.endpoint,
			"eventID", event.EventID,
		)
		return fmt.Errorf("control plane returned error status %d: %s", resp.StatusCode(), resp.String())
	}

	logger.Info("Run event successfully published to control plane",
		"endpoint", p.endpoint,
		"eventID", event.EventID,
		"statusCode", resp.StatusCode(),
		"stage", event.Stage,
	)

	return nil
}
