package workflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/events"
)

// DefaultConcurrency is the number of runs a Dispatcher executes at once when none is configured.
const DefaultConcurrency = 4

// Dispatcher consumes execution requests and runs them on the Runner, at most
// concurrency runs at a time. Each run stays sequential inside.
type Dispatcher struct {
	runner     *Runner
	subscriber eventbus.EventSubscriber
	logger     *slog.Logger
	slots      chan struct{}
	wg         sync.WaitGroup
}

func NewDispatcher(runner *Runner, subscriber eventbus.EventSubscriber, logger *slog.Logger, concurrency int) *Dispatcher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	return &Dispatcher{
		runner:     runner,
		subscriber: subscriber,
		logger:     logger.With("module", "workflow_dispatcher"),
		slots:      make(chan struct{}, concurrency),
	}
}

// Start registers the request handler and begins consuming. Runs started by
// the dispatcher are cancelled when ctx is done.
func (d *Dispatcher) Start(ctx context.Context) error {
	if err := d.subscriber.Handle(ctx, events.WorkflowExecutionRequestedEvent, d.handleRequested); err != nil {
		return err
	}

	if err := d.subscriber.Subscribe(ctx); err != nil {
		return err
	}

	d.logger.InfoContext(ctx, "Dispatcher started", "concurrency", cap(d.slots))

	return nil
}

// Wait blocks until every run started so far has reached a terminal state.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) handleRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.WorkflowExecutionRequested)
	if !ok {
		d.logger.ErrorContext(ctx, "Invalid event type for execution request")

		return nil
	}

	select {
	case d.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.wg.Add(1)

	go func() {
		defer d.wg.Done()
		defer func() { <-d.slots }()

		logger := d.logger.With("workflow_id", requested.WorkflowID, "execution_id", requested.ExecutionID)
		logger.InfoContext(ctx, "Processing execution request", "event_id", requested.ID)

		if err := d.runner.RunPending(ctx, requested.ExecutionID); err != nil {
			logger.ErrorContext(ctx, "Execution failed", "error", err)
		}
	}()

	return nil
}
