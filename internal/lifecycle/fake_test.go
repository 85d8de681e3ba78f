package lifecycle

import (
	"context"
	"io"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/watch"
)

// fakeClient scripts the capability surface for component tests.
type fakeClient struct {
	created   *corev1.Pod
	createErr error

	watcher  watch.Interface
	watchErr error

	attached  AttachedProcess
	attachErr error

	logStream io.ReadCloser
	logErr    error

	deleteResult DeletionResult
	deleteErr    error
}

func (f *fakeClient) Create(_ context.Context, pod *corev1.Pod) (*corev1.Pod, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = pod
	return pod, nil
}

func (f *fakeClient) Watch(context.Context, string, int64) (watch.Interface, error) {
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	return f.watcher, nil
}

func (f *fakeClient) Attach(context.Context, string, AttachOptions) (AttachedProcess, error) {
	if f.attachErr != nil {
		return nil, f.attachErr
	}
	return f.attached, nil
}

func (f *fakeClient) LogStream(context.Context, string, LogOptions) (io.ReadCloser, error) {
	if f.logErr != nil {
		return nil, f.logErr
	}
	return f.logStream, nil
}

func (f *fakeClient) Delete(context.Context, string) (DeletionResult, error) {
	if f.deleteErr != nil {
		return DeletionResult{}, f.deleteErr
	}
	return f.deleteResult, nil
}

// chunkReader hands out one scripted chunk per Read call, then EOF.
type chunkReader struct {
	chunks [][]byte
	next   int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.next >= len(r.chunks) {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[r.next])
	r.next++
	return n, nil
}

// fakeAttached is a scripted attach session with a pre-resolved status.
type fakeAttached struct {
	stdout io.Reader
	stderr io.Reader
	status *StatusSlot
	closed bool
}

func newFakeAttached(stdout, stderr [][]byte, status ProcessStatus) *fakeAttached {
	slot := NewStatusSlot()
	slot.Resolve(status)
	return &fakeAttached{
		stdout: &chunkReader{chunks: stdout},
		stderr: &chunkReader{chunks: stderr},
		status: slot,
	}
}

func (f *fakeAttached) Stdout() io.Reader { return f.stdout }
func (f *fakeAttached) Stderr() io.Reader { return f.stderr }

func (f *fakeAttached) TakeStatus() (<-chan ProcessStatus, error) {
	return f.status.Take()
}

func (f *fakeAttached) Close() error {
	f.closed = true
	return nil
}

// chunkRecorder records every Write as one chunk.
type chunkRecorder struct {
	chunks [][]byte
	err    error
}

func (r *chunkRecorder) Write(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	chunk := make([]byte, len(p))
	copy(chunk, p)
	r.chunks = append(r.chunks, chunk)
	return len(p), nil
}

func (r *chunkRecorder) bytes() []byte {
	var out []byte
	for _, c := range r.chunks {
		out = append(out, c...)
	}
	return out
}
