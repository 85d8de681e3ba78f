package lifecycle

import (
	"fmt"
	"io"
	"sync"
)

const chunkSize = 32 * 1024

// StatusSlot holds the terminal status of an attached process. It resolves
// at most once and may be taken at most once; a second Take returns
// ErrStatusTaken instead of panicking.
type StatusSlot struct {
	mu     sync.Mutex
	taken  bool
	result chan ProcessStatus
}

func NewStatusSlot() *StatusSlot {
	return &StatusSlot{result: make(chan ProcessStatus, 1)}
}

// Resolve stores the status. Later calls are no-ops.
func (s *StatusSlot) Resolve(status ProcessStatus) {
	select {
	case s.result <- status:
	default:
	}
}

// Take hands out the channel the status will arrive on.
func (s *StatusSlot) Take() (<-chan ProcessStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taken {
		return nil, ErrStatusTaken
	}
	s.taken = true
	return s.result, nil
}

// DrainCombined merges both output channels of the process into sink.
// Whichever channel has a chunk ready is forwarded first; order within each
// channel is preserved and chunk bytes are written verbatim, with no
// reframing. A read failure ends that channel without disturbing the other.
// Once both channels hit end-of-stream the terminal status is taken, exactly
// once, and returned. The session is closed on every exit path.
func DrainCombined(proc AttachedProcess, sink io.Writer) (ProcessStatus, error) {
	defer func() { _ = proc.Close() }()

	merged := make(chan []byte)
	var wg sync.WaitGroup
	wg.Add(2)
	go readChunks(proc.Stdout(), merged, &wg)
	go readChunks(proc.Stderr(), merged, &wg)
	go func() {
		wg.Wait()
		close(merged)
	}()

	var sinkErr error
	for chunk := range merged {
		if sinkErr != nil {
			// Keep draining so both readers can run to completion.
			continue
		}
		if _, err := sink.Write(chunk); err != nil {
			sinkErr = fmt.Errorf("writing attach output: %w", err)
		}
	}
	if sinkErr != nil {
		return ProcessStatus{}, sinkErr
	}

	return takeStatus(proc)
}

// DrainSeparate is the alternate mode: each channel goes to its own sink
// instead of being merged. Completion and status semantics match
// DrainCombined.
func DrainSeparate(proc AttachedProcess, stdout, stderr io.Writer) (ProcessStatus, error) {
	defer func() { _ = proc.Close() }()

	var wg sync.WaitGroup
	sinkErrs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := copyChunks(stdout, proc.Stdout()); err != nil {
			sinkErrs <- err
		}
	}()
	go func() {
		defer wg.Done()
		if err := copyChunks(stderr, proc.Stderr()); err != nil {
			sinkErrs <- err
		}
	}()
	wg.Wait()
	close(sinkErrs)

	if err := <-sinkErrs; err != nil {
		return ProcessStatus{}, err
	}

	return takeStatus(proc)
}

func takeStatus(proc AttachedProcess) (ProcessStatus, error) {
	statusCh, err := proc.TakeStatus()
	if err != nil {
		return ProcessStatus{}, err
	}
	return <-statusCh, nil
}

// readChunks forwards chunks from r into out until end-of-stream. The byte
// content of each chunk is copied so the shared read buffer can be reused.
func readChunks(r io.Reader, out chan<- []byte, wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			out <- chunk
		}
		if err != nil {
			return
		}
	}
}

// copyChunks is the direct-to-sink variant used by DrainSeparate. Read
// failures end the channel silently; sink failures are returned.
func copyChunks(w io.Writer, r io.Reader) error {
	buf := make([]byte, chunkSize)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return fmt.Errorf("writing attach output: %w", err)
			}
		}
		if readErr != nil {
			return nil
		}
	}
}
