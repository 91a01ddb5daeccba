// Package dispatch is the control surface of the deploy worker: it decodes
// control messages and drives the task queue in front of the deployment pipeline.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ashutoshpw/coolify/internal/store"
	"github.com/ashutoshpw/coolify/pkg/deployment"
	"github.com/hashicorp/go-hclog"
)

// Runner executes one deployment
type Runner interface {
	Run(ctx context.Context, req deployment.Request) error
}

// TaskQueue is the queue the worker feeds
type TaskQueue interface {
	Add(name string, task func(ctx context.Context) error) string
	Clear() int
	Size() int
	Active() int
	CancelActive() int
}

// Worker accepts deployment requests and control messages
type Worker struct {
	queue     TaskQueue
	runner    Runner
	registrar store.BuildRegistrar
	networks  map[string]string
	logger    hclog.Logger
}

// Option configures a Worker
type Option func(*Worker)

// WithRegistrar records submitted builds as queued before they wait in the queue
func WithRegistrar(r store.BuildRegistrar) Option {
	return func(w *Worker) { w.registrar = r }
}

// WithDefaultNetworks fills the network of requests that name a destination without one
func WithDefaultNetworks(networks map[string]string) Option {
	return func(w *Worker) { w.networks = networks }
}

// NewWorker creates a worker that runs requests through runner on queue
func NewWorker(queue TaskQueue, runner Runner, logger hclog.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	w := &Worker{
		queue:  queue,
		runner: runner,
		logger: logger.Named("dispatch"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Submit validates req and queues it. It returns the queue task id.
func (w *Worker) Submit(ctx context.Context, req deployment.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if req.Destination.Network == "" {
		req.Destination.Network = w.networks[req.Destination.ID]
	}
	if w.registrar != nil {
		err := w.registrar.RegisterBuild(ctx, deployment.BuildRecord{
			ID:            req.BuildID,
			ApplicationID: req.ApplicationID,
			Status:        deployment.StatusQueued,
		})
		if err != nil {
			return "", fmt.Errorf("register build %s: %w", req.BuildID, err)
		}
	}

	id := w.queue.Add(req.BuildID, func(ctx context.Context) error {
		return w.runner.Run(ctx, req)
	})
	w.logger.Info("deployment queued", "buildId", req.BuildID, "application", req.ApplicationID,
		"task", id, "depth", w.queue.Size())
	return id, nil
}

// Cancel signals every running deployment to stop at its next step and acknowledges at once.
// Pending deployments are not touched.
func (w *Worker) Cancel() string {
	n := w.queue.CancelActive()
	w.logger.Info("cancel requested", "signalled", n)
	return CancelledAck
}

// Status reports queue depth and running tasks. It never changes state.
func (w *Worker) Status(caller string) StatusReport {
	return StatusReport{
		QueueDepth:  w.queue.Size(),
		ActiveCount: w.queue.Active(),
		Caller:      caller,
	}
}

// Flush drops every deployment that has not started and returns how many were dropped
func (w *Worker) Flush() int {
	n := w.queue.Clear()
	w.logger.Info("queue flushed", "dropped", n)
	return n
}

// Handle applies one raw control message. Status and cancel produce a reply;
// submit and flush reply with nil.
func (w *Worker) Handle(ctx context.Context, data []byte) (any, error) {
	msg, err := ParseMessage(data)
	if err != nil {
		return nil, err
	}

	switch msg.Kind {
	case KindCancel:
		return w.Cancel(), nil
	case KindStatus:
		return w.Status(msg.Caller), nil
	case KindFlush:
		w.Flush()
		return nil, nil
	case KindSubmit:
		_, err := w.Submit(ctx, *msg.Request)
		return nil, err
	}
	return nil, fmt.Errorf("%w: unknown message kind %q", ErrParse, msg.Kind)
}

// Serve handles messages from in until it is closed or ctx ends. Replies are sent to out.
// A message that fails to parse or submit is logged and skipped.
func (w *Worker) Serve(ctx context.Context, in <-chan []byte, out chan<- any) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-in:
			if !ok {
				return nil
			}
			reply, err := w.Handle(ctx, data)
			if err != nil {
				w.logger.Warn("control message rejected", "error", err)
				continue
			}
			if reply == nil || out == nil {
				continue
			}
			select {
			case out <- reply:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// HandleRaw adapts Handle to request/reply transports such as NATS. Errors are
// returned as {"error": "..."}; a nil reply is returned as nil.
func (w *Worker) HandleRaw(ctx context.Context, data []byte) []byte {
	reply, err := w.Handle(ctx, data)
	if err != nil {
		w.logger.Warn("control message rejected", "error", err)
		out, _ := json.Marshal(map[string]string{"error": err.Error()})
		return out
	}
	switch r := reply.(type) {
	case nil:
		return nil
	case string:
		return []byte(r)
	default:
		out, err := json.Marshal(r)
		if err != nil {
			w.logger.Error("failed to encode reply", "error", err)
			return nil
		}
		return out
	}
}
