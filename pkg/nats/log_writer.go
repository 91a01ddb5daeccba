package nats

import (
	"bytes"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// LogWriter implements io.Writer and publishes every complete line
type LogWriter struct {
	publisher     LogPublisher
	buildID       string
	applicationID string
	phase         string
	buffer        []byte
	sequence      int
	mu            sync.Mutex
	logger        hclog.Logger
}

// NewLogWriter creates a line-buffered writer publishing to publisher
func NewLogWriter(publisher LogPublisher, buildID, applicationID, phase string, logger hclog.Logger) *LogWriter {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &LogWriter{
		publisher:     publisher,
		buildID:       buildID,
		applicationID: applicationID,
		phase:         phase,
		buffer:        []byte{},
		logger:        logger,
	}
}

// Write buffers p and publishes each complete line
func (w *LogWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buffer = append(w.buffer, p...)

	for {
		idx := bytes.IndexByte(w.buffer, '\n')
		if idx == -1 {
			break
		}

		line := string(w.buffer[:idx])
		w.buffer = w.buffer[idx+1:]

		// Publish errors are logged, never surfaced to the command writing its output
		if err := w.publishLocked(line); err != nil {
			w.logger.Warn("Failed to publish build log", "error", err, "build", w.buildID)
		}
	}

	return len(p), nil
}

func (w *LogWriter) publishLocked(content string) error {
	w.sequence++
	if w.publisher == nil {
		return nil
	}
	return w.publisher.PublishBuildLog(BuildLogPayload{
		BuildID:       w.buildID,
		ApplicationID: w.applicationID,
		Content:       content,
		Timestamp:     time.Now().UnixMilli(),
		Sequence:      w.sequence,
		Phase:         w.phase,
	})
}

// WriteLine publishes a single complete line, bypassing the buffer
func (w *LogWriter) WriteLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.publishLocked(line)
}

// SetPhase updates the current build phase
func (w *LogWriter) SetPhase(phase string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.phase = phase
	w.logger.Debug("Build phase changed", "phase", phase, "build", w.buildID)
}

// Flush sends any buffered content immediately
func (w *LogWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buffer) == 0 {
		return nil
	}
	content := string(w.buffer)
	w.buffer = []byte{}
	if err := w.publishLocked(content); err != nil {
		w.logger.Error("Failed to flush build log", "error", err, "build", w.buildID)
		return err
	}
	return nil
}

// Close stops the writer and sends final flush
func (w *LogWriter) Close() error {
	return w.Flush()
}
