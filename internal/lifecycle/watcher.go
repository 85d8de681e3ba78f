package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/watch"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// DefaultWatchTimeoutSeconds bounds how long WaitUntilRunning waits for the
// pod to start.
const DefaultWatchTimeoutSeconds int64 = 10

// watchClientSlack is added on top of the server-side timeout for the
// client-side deadline, so a server that never closes the stream cannot
// hang the caller.
const watchClientSlack = 5 * time.Second

// WaitUntilRunning blocks until the named pod reaches the Running phase.
// The watch is restricted to the pod by field selector and delivers current
// state first; events are consumed strictly in arrival order. The stream
// ending before a Running transition surfaces as ErrWatchTimedOut, which is
// distinct from transport failures. No retries happen here; retry policy
// belongs to the caller.
func WaitUntilRunning(ctx context.Context, client PodClient, name string, timeoutSeconds int64) error {
	logger := log.FromContext(ctx).WithName("readiness")

	watchCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second+watchClientSlack)
	defer cancel()

	w, err := client.Watch(watchCtx, name, timeoutSeconds)
	if err != nil {
		return stageErr("watch", name, err)
	}
	defer w.Stop()

	for {
		select {
		case <-watchCtx.Done():
			if errors.Is(watchCtx.Err(), context.DeadlineExceeded) {
				return stageErr("watch", name, ErrWatchTimedOut)
			}
			return stageErr("watch", name, watchCtx.Err())
		case ev, ok := <-w.ResultChan():
			if !ok {
				// Server-side timeout closed the stream before Running.
				return stageErr("watch", name, ErrWatchTimedOut)
			}
			switch ev.Type {
			case watch.Added:
				if pod, isPod := ev.Object.(*corev1.Pod); isPod {
					logger.Info("Pod added", "pod", pod.Name)
				}
			case watch.Modified:
				pod, isPod := ev.Object.(*corev1.Pod)
				if !isPod {
					continue
				}
				if pod.Status.Phase == "" {
					return stageErr("watch", name, ErrMissingStatus)
				}
				if pod.Status.Phase == corev1.PodRunning {
					logger.Info("Pod running", "pod", pod.Name)
					return nil
				}
			case watch.Error:
				return stageErr("watch", name,
					fmt.Errorf("watch stream error: %w", apierrors.FromObject(ev.Object)))
			default:
				// Deleted and Bookmark events carry nothing we need.
			}
		}
	}
}
