package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrWatchTimedOut means the watch stream ended before the pod reached
	// the Running phase. Distinct from transport failures so callers can
	// tell "never started" apart from "connection broke".
	ErrWatchTimedOut = errors.New("watch ended before pod was running")

	// ErrMissingStatus means a Modified event carried a pod without a phase.
	// The API server attaches status to every pod after creation, so this is
	// a control-plane contract violation, not a transient condition.
	ErrMissingStatus = errors.New("pod has no status phase")

	// ErrDeletionMismatch means the object acknowledged as deleted is not the
	// one we asked to delete. This indicates two callers racing on the same
	// name or a client defect; it must never be retried or ignored.
	ErrDeletionMismatch = errors.New("deleted pod name does not match requested name")

	// ErrStatusTaken means the terminal status of an attached process was
	// requested a second time.
	ErrStatusTaken = errors.New("process status already taken")
)

// StageError wraps a failure with the workflow stage and pod it belongs to.
type StageError struct {
	Stage string
	Pod   string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed for pod %q: %v", e.Stage, e.Pod, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage, pod string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Pod: pod, Err: err}
}
