package runner

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/apptrail-sh/podrun/internal/lifecycle"
	"github.com/apptrail-sh/podrun/internal/metrics"
	"github.com/apptrail-sh/podrun/internal/model"
	"github.com/apptrail-sh/podrun/internal/workload"
)

// Config controls workflow behavior that is not part of the descriptor.
type Config struct {
	// WatchTimeoutSeconds bounds the readiness wait. Zero means the default.
	WatchTimeoutSeconds int64
	// SeparateOutputs routes stdout and stderr of the attached process to
	// their own sinks instead of merging them.
	SeparateOutputs bool
	// Logs configures the log-following stage.
	Logs lifecycle.LogOptions
}

// Runner drives the full lifecycle of a single pod: create, wait until
// running, attach and drain output, follow logs, delete. Stages run strictly
// in sequence and the first failure aborts the rest of the workflow.
type Runner struct {
	client  lifecycle.PodClient
	cfg     Config
	updates chan<- model.RunUpdate

	// Sinks for attached output and log lines. Zero values fall back to the
	// process's own stdout/stderr.
	Stdout  io.Writer
	Stderr  io.Writer
	LogSink lifecycle.LineSink
}

// New builds a runner writing to the process's standard streams. The updates
// channel is optional; pass nil to skip event reporting.
func New(client lifecycle.PodClient, cfg Config, updates chan<- model.RunUpdate) *Runner {
	if cfg.WatchTimeoutSeconds == 0 {
		cfg.WatchTimeoutSeconds = lifecycle.DefaultWatchTimeoutSeconds
	}
	return &Runner{
		client:  client,
		cfg:     cfg,
		updates: updates,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		LogSink: lifecycle.NewWriterLineSink(os.Stdout),
	}
}

// Run executes the workflow for one descriptor and blocks until it finishes
// or a stage fails.
func (r *Runner) Run(ctx context.Context, desc workload.Descriptor) error {
	runID := uuid.New().String()

	if err := r.run(ctx, runID, desc); err != nil {
		metrics.CountRun("failed")
		r.publish(ctx, runID, desc, model.RunStageFailed, nil, err)
		return err
	}
	metrics.CountRun("succeeded")
	return nil
}

func (r *Runner) run(ctx context.Context, runID string, desc workload.Descriptor) error {
	logger := log.FromContext(ctx).WithName("runner").WithValues("pod", desc.Name, "runID", runID)

	logger.Info("Creating pod", "namespace", desc.Namespace, "image", desc.Image)
	created, err := r.stageCreate(ctx, desc)
	if err != nil {
		return err
	}
	logger.Info("Pod created", "resourceVersion", created.ResourceVersion)
	r.publish(ctx, runID, desc, model.RunStageCreated, nil, nil)

	if err := r.stageWait(ctx, desc.Name); err != nil {
		return err
	}
	r.publish(ctx, runID, desc, model.RunStageRunning, nil, nil)

	status, err := r.stageAttach(ctx, runID, desc)
	if err != nil {
		return err
	}
	if status.Err != nil {
		return &lifecycle.StageError{Stage: "attach", Pod: desc.Name, Err: status.Err}
	}
	logger.Info("Attached process finished", "exitCode", status.ExitCode, "signal", status.Signal)
	r.publish(ctx, runID, desc, model.RunStageDrained, &status.ExitCode, nil)

	if err := r.stageLogs(ctx, desc.Name); err != nil {
		return err
	}
	r.publish(ctx, runID, desc, model.RunStageLogsComplete, nil, nil)

	if err := r.stageDelete(ctx, desc.Name); err != nil {
		return err
	}
	r.publish(ctx, runID, desc, model.RunStageDeleted, nil, nil)

	return nil
}

func (r *Runner) stageCreate(ctx context.Context, desc workload.Descriptor) (*corev1.Pod, error) {
	start := time.Now()
	defer func() { metrics.ObserveStage("create", time.Since(start)) }()

	pod, err := r.client.Create(ctx, desc.BuildPod())
	if err != nil {
		return nil, &lifecycle.StageError{Stage: "create", Pod: desc.Name, Err: err}
	}
	return pod, nil
}

func (r *Runner) stageWait(ctx context.Context, name string) error {
	start := time.Now()
	defer func() { metrics.ObserveStage("wait_running", time.Since(start)) }()

	return lifecycle.WaitUntilRunning(ctx, r.client, name, r.cfg.WatchTimeoutSeconds)
}

func (r *Runner) stageAttach(ctx context.Context, runID string, desc workload.Descriptor) (lifecycle.ProcessStatus, error) {
	start := time.Now()
	defer func() { metrics.ObserveStage("attach", time.Since(start)) }()

	proc, err := r.client.Attach(ctx, desc.Name, lifecycle.DefaultAttachOptions())
	if err != nil {
		return lifecycle.ProcessStatus{}, &lifecycle.StageError{Stage: "attach", Pod: desc.Name, Err: err}
	}
	r.publish(ctx, runID, desc, model.RunStageAttached, nil, nil)

	var status lifecycle.ProcessStatus
	if r.cfg.SeparateOutputs {
		status, err = lifecycle.DrainSeparate(proc, r.Stdout, r.Stderr)
	} else {
		status, err = lifecycle.DrainCombined(proc, r.Stdout)
	}
	if err != nil {
		return lifecycle.ProcessStatus{}, &lifecycle.StageError{Stage: "attach", Pod: desc.Name, Err: err}
	}
	return status, nil
}

func (r *Runner) stageLogs(ctx context.Context, name string) error {
	start := time.Now()
	defer func() { metrics.ObserveStage("logs", time.Since(start)) }()

	return lifecycle.FollowLogs(ctx, r.client, name, r.cfg.Logs, r.LogSink)
}

func (r *Runner) stageDelete(ctx context.Context, name string) error {
	start := time.Now()
	defer func() { metrics.ObserveStage("delete", time.Since(start)) }()

	return lifecycle.DeleteAndConfirm(ctx, r.client, name)
}

func (r *Runner) publish(ctx context.Context, runID string, desc workload.Descriptor, stage model.RunStage, exitCode *int, runErr error) {
	if r.updates == nil {
		return
	}

	update := model.RunUpdate{
		RunID:     runID,
		Name:      desc.Name,
		Namespace: desc.Namespace,
		Image:     desc.Image,
		Stage:     stage,
		ExitCode:  exitCode,
	}
	if runErr != nil {
		update.Error = runErr.Error()
	}

	select {
	case r.updates <- update:
	default:
		log.FromContext(ctx).Error(nil, "Update channel full, dropping run event",
			"pod", desc.Name,
			"stage", stage,
		)
	}
}
