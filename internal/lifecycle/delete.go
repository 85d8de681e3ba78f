package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// DeleteAndConfirm removes the pod with default grace-period semantics and
// validates the acknowledgment. When the control plane answers with the
// deleted object, its name must equal the requested one; a mismatch means
// two callers raced on the same name or the client is defective, and is
// surfaced as ErrDeletionMismatch rather than something to retry. A pending
// acknowledgment needs no further action here; callers that must observe
// the removal itself poll or watch on their own.
func DeleteAndConfirm(ctx context.Context, client PodClient, name string) error {
	logger := log.FromContext(ctx).WithName("deletion")

	result, err := client.Delete(ctx, name)
	if err != nil {
		return stageErr("delete", name, err)
	}

	switch {
	case result.Deleted != nil:
		if result.Deleted.Name != name {
			return stageErr("delete", name,
				fmt.Errorf("%w: control plane returned %q", ErrDeletionMismatch, result.Deleted.Name))
		}
		logger.Info("Pod deleted", "pod", name)
	case result.Pending != nil:
		logger.Info("Pod deletion pending", "pod", name, "status", result.Pending.Status)
	default:
		return stageErr("delete", name, errors.New("delete acknowledged with neither object nor status"))
	}
	return nil
}
