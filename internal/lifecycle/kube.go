package lifecycle

import (
	"context"
	"fmt"
	"io"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"
	executil "k8s.io/client-go/util/exec"
)

// KubeClient binds PodClient to a real cluster through a typed clientset.
type KubeClient struct {
	clientset kubernetes.Interface
	config    *rest.Config
	namespace string
}

// NewKubeClient builds a client scoped to one namespace. The rest config is
// kept alongside the clientset because the attach subresource needs its own
// SPDY transport.
func NewKubeClient(clientset kubernetes.Interface, config *rest.Config, namespace string) *KubeClient {
	return &KubeClient{
		clientset: clientset,
		config:    config,
		namespace: namespace,
	}
}

func (c *KubeClient) Create(ctx context.Context, pod *corev1.Pod) (*corev1.Pod, error) {
	created, err := c.clientset.CoreV1().Pods(c.namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("creating pod %q: %w", pod.Name, err)
	}
	return created, nil
}

func (c *KubeClient) Watch(ctx context.Context, name string, timeoutSeconds int64) (watch.Interface, error) {
	w, err := c.clientset.CoreV1().Pods(c.namespace).Watch(ctx, metav1.ListOptions{
		FieldSelector:   fields.OneTermEqualSelector("metadata.name", name).String(),
		TimeoutSeconds:  &timeoutSeconds,
		ResourceVersion: "0",
	})
	if err != nil {
		return nil, fmt.Errorf("opening watch for pod %q: %w", name, err)
	}
	return w, nil
}

func (c *KubeClient) Attach(ctx context.Context, name string, opts AttachOptions) (AttachedProcess, error) {
	req := c.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(c.namespace).
		Name(name).
		SubResource("attach")
	req.VersionedParams(&corev1.PodAttachOptions{
		Container: opts.Container,
		Stdout:    opts.Stdout,
		Stderr:    opts.Stderr,
	}, scheme.ParameterCodec)

	exec, err := remotecommand.NewSPDYExecutor(c.config, "POST", req.URL())
	if err != nil {
		return nil, fmt.Errorf("building attach executor for pod %q: %w", name, err)
	}

	return startAttached(ctx, exec, opts), nil
}

func (c *KubeClient) LogStream(ctx context.Context, name string, opts LogOptions) (io.ReadCloser, error) {
	stream, err := c.clientset.CoreV1().Pods(c.namespace).GetLogs(name, &corev1.PodLogOptions{
		Follow:       opts.Follow,
		Container:    opts.Container,
		TailLines:    opts.TailLines,
		SinceSeconds: opts.SinceSeconds,
		Timestamps:   opts.Timestamps,
	}).Stream(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening log stream for pod %q: %w", name, err)
	}
	return stream, nil
}

// Delete goes through the REST client rather than the typed Delete call
// so the response body is preserved: the API server answers either with
// the pod's last state or with a Status describing a pending deletion.
func (c *KubeClient) Delete(ctx context.Context, name string) (DeletionResult, error) {
	result, err := c.clientset.CoreV1().RESTClient().Delete().
		Namespace(c.namespace).
		Resource("pods").
		Name(name).
		Body(&metav1.DeleteOptions{}).
		Do(ctx).
		Get()
	if err != nil {
		return DeletionResult{}, fmt.Errorf("deleting pod %q: %w", name, err)
	}

	switch obj := result.(type) {
	case *corev1.Pod:
		return DeletionResult{Deleted: obj}, nil
	case *metav1.Status:
		return DeletionResult{Pending: obj}, nil
	default:
		return DeletionResult{}, fmt.Errorf("deleting pod %q: unexpected response type %T", name, result)
	}
}

// kubeAttached adapts the push-style remotecommand session to the two-reader
// shape. The executor writes into pipes from its own goroutine; both pipes
// reach EOF when the stream ends, and the terminal status resolves from the
// executor's return value.
type kubeAttached struct {
	stdout *io.PipeReader
	stderr *io.PipeReader
	status *StatusSlot
	cancel context.CancelFunc
}

func startAttached(ctx context.Context, exec remotecommand.Executor, opts AttachOptions) *kubeAttached {
	ctx, cancel := context.WithCancel(ctx)

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()

	a := &kubeAttached{
		stdout: outR,
		stderr: errR,
		status: NewStatusSlot(),
		cancel: cancel,
	}

	go func() {
		streamOpts := remotecommand.StreamOptions{}
		if opts.Stdout {
			streamOpts.Stdout = outW
		}
		if opts.Stderr {
			streamOpts.Stderr = errW
		}
		err := exec.StreamWithContext(ctx, streamOpts)
		_ = outW.Close()
		_ = errW.Close()
		a.status.Resolve(statusFromStreamErr(err))
	}()

	return a
}

func statusFromStreamErr(err error) ProcessStatus {
	if err == nil {
		return ProcessStatus{ExitCode: 0}
	}
	if exitErr, ok := err.(executil.CodeExitError); ok {
		return ProcessStatus{ExitCode: exitErr.Code}
	}
	return ProcessStatus{ExitCode: -1, Err: err}
}

func (a *kubeAttached) Stdout() io.Reader { return a.stdout }
func (a *kubeAttached) Stderr() io.Reader { return a.stderr }

func (a *kubeAttached) TakeStatus() (<-chan ProcessStatus, error) {
	return a.status.Take()
}

func (a *kubeAttached) Close() error {
	a.cancel()
	_ = a.stdout.Close()
	_ = a.stderr.Close()
	return nil
}
