package model

import (
	"time"

	"github.com/google/uuid"
)

type RunStage string

const (
	RunStageCreated      RunStage = "CREATED"
	RunStageRunning      RunStage = "RUNNING"
	RunStageAttached     RunStage = "ATTACHED"
	RunStageDrained      RunStage = "DRAINED"
	RunStageLogsComplete RunStage = "LOGS_COMPLETE"
	RunStageDeleted      RunStage = "DELETED"
	RunStageFailed       RunStage = "FAILED"
)

// RunUpdate is the internal notification emitted after each workflow stage.
type RunUpdate struct {
	RunID     string
	Name      string
	Namespace string
	Image     string
	Stage     RunStage
	ExitCode  *int
	Error     string
}

type SourceMetadata struct {
	ClusterID     string `json:"clusterId"`
	RunnerVersion string `json:"runnerVersion"`
}

type WorkloadRef struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Image     string `json:"image,omitempty"`
}

type ErrorDetail struct {
	Message string `json:"message"`
}

// RunEventPayload is the wire form published to external sinks.
type RunEventPayload struct {
	EventID     string         `json:"eventId"`
	RunID       string         `json:"runId"`
	OccurredAt  time.Time      `json:"occurredAt"`
	Environment string         `json:"environment,omitempty"`
	Source      SourceMetadata `json:"source"`
	Workload    WorkloadRef    `json:"workload"`
	Stage       RunStage       `json:"stage"`
	ExitCode    *int           `json:"exitCode,omitempty"`
	Error       *ErrorDetail   `json:"error,omitempty"`
}

func NewRunEventPayload(update RunUpdate, clusterID, environment, runnerVersion string) RunEventPayload {
	var errorDetail *ErrorDetail
	if update.Error != "" {
		errorDetail = &ErrorDetail{Message: update.Error}
	}

	return RunEventPayload{
		EventID:     uuid.New().String(),
		RunID:       update.RunID,
		OccurredAt:  time.Now().UTC(),
		Environment: environment,
		Source: SourceMetadata{
			ClusterID:     clusterID,
			RunnerVersion: runnerVersion,
		},
		Workload: WorkloadRef{
			Name:      update.Name,
			Namespace: update.Namespace,
			Image:     update.Image,
		},
		Stage:    update.Stage,
		ExitCode: update.ExitCode,
		Error:    errorDetail,
	}
}
