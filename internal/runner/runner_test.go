package runner_test

import (
	"bytes"
	"context"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/apptrail-sh/podrun/internal/lifecycle"
	"github.com/apptrail-sh/podrun/internal/model"
	"github.com/apptrail-sh/podrun/internal/runner"
	"github.com/apptrail-sh/podrun/internal/workload"
)

// scriptClient plays back a scripted control plane for one run.
type scriptClient struct {
	watcher      watch.Interface
	proc         lifecycle.AttachedProcess
	logStream    io.ReadCloser
	deleteResult lifecycle.DeletionResult

	createdPod   *corev1.Pod
	attachCalled bool
	deleteCalled bool
}

func (s *scriptClient) Create(_ context.Context, pod *corev1.Pod) (*corev1.Pod, error) {
	s.createdPod = pod
	return pod, nil
}

func (s *scriptClient) Watch(context.Context, string, int64) (watch.Interface, error) {
	return s.watcher, nil
}

func (s *scriptClient) Attach(context.Context, string, lifecycle.AttachOptions) (lifecycle.AttachedProcess, error) {
	s.attachCalled = true
	return s.proc, nil
}

func (s *scriptClient) LogStream(context.Context, string, lifecycle.LogOptions) (io.ReadCloser, error) {
	return s.logStream, nil
}

func (s *scriptClient) Delete(context.Context, string) (lifecycle.DeletionResult, error) {
	s.deleteCalled = true
	return s.deleteResult, nil
}

type scriptedProcess struct {
	stdout io.Reader
	stderr io.Reader
	status *lifecycle.StatusSlot
}

func newScriptedProcess(stdout, stderr string, exitCode int) *scriptedProcess {
	slot := lifecycle.NewStatusSlot()
	slot.Resolve(lifecycle.ProcessStatus{ExitCode: exitCode})
	return &scriptedProcess{
		stdout: strings.NewReader(stdout),
		stderr: strings.NewReader(stderr),
		status: slot,
	}
}

func (p *scriptedProcess) Stdout() io.Reader { return p.stdout }
func (p *scriptedProcess) Stderr() io.Reader { return p.stderr }
func (p *scriptedProcess) TakeStatus() (<-chan lifecycle.ProcessStatus, error) {
	return p.status.Take()
}
func (p *scriptedProcess) Close() error { return nil }

func podWithPhase(name string, phase corev1.PodPhase) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Status:     corev1.PodStatus{Phase: phase},
	}
}

func collectStages(updates chan model.RunUpdate) []model.RunStage {
	close(updates)
	var stages []model.RunStage
	for update := range updates {
		stages = append(stages, update.Stage)
	}
	return stages
}

var _ = Describe("Runner", func() {
	const podName = "test-kane8n"

	var (
		client  *scriptClient
		updates chan model.RunUpdate
		stdout  *bytes.Buffer
		stderr  *bytes.Buffer
		lines   []string
		desc    workload.Descriptor
	)

	newRunner := func(cfg runner.Config) *runner.Runner {
		r := runner.New(client, cfg, updates)
		r.Stdout = stdout
		r.Stderr = stderr
		r.LogSink = lifecycle.LineSinkFunc(func(line string) error {
			lines = append(lines, line)
			return nil
		})
		return r
	}

	BeforeEach(func() {
		updates = make(chan model.RunUpdate, 16)
		stdout = &bytes.Buffer{}
		stderr = &bytes.Buffer{}
		lines = nil
		desc = workload.Descriptor{
			Name:      podName,
			Namespace: "default",
			Image:     "alpine",
			Command:   []string{"sh", "-c", `echo "Hello, kube-rs!" && sleep 10`},
		}

		fw := watch.NewFakeWithChanSize(4, false)
		fw.Add(podWithPhase(podName, corev1.PodPending))
		fw.Modify(podWithPhase(podName, corev1.PodPending))
		fw.Modify(podWithPhase(podName, corev1.PodRunning))

		client = &scriptClient{
			watcher:   fw,
			proc:      newScriptedProcess("Hello, kube-rs!\n", "", 0),
			logStream: io.NopCloser(strings.NewReader("Hello, kube-rs!\n")),
			deleteResult: lifecycle.DeletionResult{
				Deleted: &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: podName}},
			},
		}
	})

	It("runs the full lifecycle for a pod that starts and exits cleanly", func() {
		r := newRunner(runner.Config{})

		Expect(r.Run(context.Background(), desc)).To(Succeed())

		Expect(client.createdPod).NotTo(BeNil())
		Expect(client.createdPod.Name).To(Equal(podName))
		Expect(stdout.String()).To(Equal("Hello, kube-rs!\n"))
		Expect(lines).To(Equal([]string{"Hello, kube-rs!"}))
		Expect(client.deleteCalled).To(BeTrue())

		Expect(collectStages(updates)).To(Equal([]model.RunStage{
			model.RunStageCreated,
			model.RunStageRunning,
			model.RunStageAttached,
			model.RunStageDrained,
			model.RunStageLogsComplete,
			model.RunStageDeleted,
		}))
	})

	It("reports the exit code of the attached process", func() {
		client.proc = newScriptedProcess("output\n", "", 7)
		r := newRunner(runner.Config{})

		Expect(r.Run(context.Background(), desc)).To(Succeed())

		close(updates)
		var drained *model.RunUpdate
		for update := range updates {
			if update.Stage == model.RunStageDrained {
				u := update
				drained = &u
			}
		}
		Expect(drained).NotTo(BeNil())
		Expect(drained.ExitCode).To(HaveValue(Equal(7)))
	})

	It("aborts before attaching when the pod never becomes ready", func() {
		fw := watch.NewFakeWithChanSize(2, false)
		fw.Add(podWithPhase(podName, corev1.PodPending))
		fw.Stop()
		client.watcher = fw

		r := newRunner(runner.Config{})

		err := r.Run(context.Background(), desc)
		Expect(err).To(MatchError(lifecycle.ErrWatchTimedOut))
		Expect(client.attachCalled).To(BeFalse())
		Expect(client.deleteCalled).To(BeFalse())

		stages := collectStages(updates)
		Expect(stages).To(HaveLen(2))
		Expect(stages[0]).To(Equal(model.RunStageCreated))
		Expect(stages[1]).To(Equal(model.RunStageFailed))
	})

	It("fails when the deleted identity does not match", func() {
		client.deleteResult = lifecycle.DeletionResult{
			Deleted: &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "someone-else"}},
		}
		r := newRunner(runner.Config{})

		err := r.Run(context.Background(), desc)
		Expect(err).To(MatchError(lifecycle.ErrDeletionMismatch))

		stages := collectStages(updates)
		Expect(stages[len(stages)-1]).To(Equal(model.RunStageFailed))
	})

	It("routes stderr separately when configured", func() {
		client.proc = newScriptedProcess("normal output\n", "error output\n", 0)
		r := newRunner(runner.Config{SeparateOutputs: true})

		Expect(r.Run(context.Background(), desc)).To(Succeed())
		Expect(stdout.String()).To(Equal("normal output\n"))
		Expect(stderr.String()).To(Equal("error output\n"))
	})
})
