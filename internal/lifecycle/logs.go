package lifecycle

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// LineSink receives decoded log lines, already stripped of their trailing
// newline.
type LineSink interface {
	WriteLine(line string) error
}

// LineSinkFunc adapts a function to the LineSink interface.
type LineSinkFunc func(line string) error

func (f LineSinkFunc) WriteLine(line string) error { return f(line) }

// NewWriterLineSink wraps w so every line is written back out with a
// trailing newline.
func NewWriterLineSink(w io.Writer) LineSink {
	return LineSinkFunc(func(line string) error {
		_, err := fmt.Fprintln(w, line)
		return err
	})
}

// FollowLogs streams the pod's log, decoding it into newline-delimited
// records and forwarding each one to sink. With opts.Follow the stream is
// unbounded and only ends on closure, error, or cancellation of ctx; without
// it the stream ends once the buffered log is exhausted. A trailing partial
// line with no terminator is flushed as a final record rather than dropped.
// Cancellation terminates following without error; stream and decode
// failures are surfaced.
func FollowLogs(ctx context.Context, client PodClient, name string, opts LogOptions, sink LineSink) error {
	stream, err := client.LogStream(ctx, name, opts)
	if err != nil {
		return stageErr("logs", name, err)
	}
	defer func() { _ = stream.Close() }()

	reader := bufio.NewReader(stream)
	for {
		line, readErr := reader.ReadString('\n')
		if len(line) > 0 {
			if sinkErr := sink.WriteLine(strings.TrimSuffix(line, "\n")); sinkErr != nil {
				return stageErr("logs", name, fmt.Errorf("writing log line: %w", sinkErr))
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				// Cancellation is the caller's own signal, not a failure.
				return nil
			}
			return stageErr("logs", name, fmt.Errorf("log stream: %w", readErr))
		}
	}
}
