package lifecycle

import (
	"context"
	"io"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
)

// PodClient is the capability surface the lifecycle workflow needs from the
// control plane. The production binding is KubeClient; tests substitute fakes.
// How the client authenticates or serializes is its own concern.
type PodClient interface {
	// Create submits the pod and returns the server-assigned object.
	Create(ctx context.Context, pod *corev1.Pod) (*corev1.Pod, error)

	// Watch opens an event stream restricted to the named pod, delivering
	// current state first. The server closes the stream after timeoutSeconds
	// if nothing more arrives; the returned interface must be stopped by the
	// consumer on every exit path.
	Watch(ctx context.Context, name string, timeoutSeconds int64) (watch.Interface, error)

	// Attach opens an interactive session against the pod's running process.
	Attach(ctx context.Context, name string, opts AttachOptions) (AttachedProcess, error)

	// LogStream opens the pod's log stream. With opts.Follow the stream stays
	// open until the process exits or the context is cancelled.
	LogStream(ctx context.Context, name string, opts LogOptions) (io.ReadCloser, error)

	// Delete removes the pod with default grace-period semantics.
	Delete(ctx context.Context, name string) (DeletionResult, error)
}

// AttachOptions selects which channels of the attached process to open.
type AttachOptions struct {
	Container string
	Stdout    bool
	Stderr    bool
}

// DefaultAttachOptions opens both output channels.
func DefaultAttachOptions() AttachOptions {
	return AttachOptions{Stdout: true, Stderr: true}
}

// LogOptions mirrors the pod log API surface the follower cares about.
type LogOptions struct {
	Follow       bool
	Container    string
	TailLines    *int64
	SinceSeconds *int64
	Timestamps   bool
}

// AttachedProcess is a live attach session. The two readers are independent
// channels of the remote process; TakeStatus hands out the terminal status
// slot, which may be consumed exactly once and only resolves after both
// channels have been drained to EOF.
type AttachedProcess interface {
	Stdout() io.Reader
	Stderr() io.Reader
	TakeStatus() (<-chan ProcessStatus, error)
	Close() error
}

// ProcessStatus is the terminal state of an attached process.
type ProcessStatus struct {
	ExitCode int
	Signal   string
	Err      error
}

// DeletionResult is the control plane's answer to a delete request. Exactly
// one field is set: Deleted carries the object's last known state when the
// delete completed immediately, Pending carries the status of a deletion
// still in progress (grace period running).
type DeletionResult struct {
	Deleted *corev1.Pod
	Pending *metav1.Status
}
