// Package sweeper runs the engine's batch entrypoints on fixed intervals, so
// a deployment without an external scheduler still drains its queues.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/tripdesk/syncbridge/internal/logging"
	"github.com/tripdesk/syncbridge/internal/models"
	"github.com/tripdesk/syncbridge/internal/service"
)

// Sweeper owns the processor and dispatcher loops and, when pipelines are
// configured, a periodic poll of each.
type Sweeper struct {
	processor  *service.Processor
	dispatcher *service.Dispatcher
	poller     *service.Poller
	batchSize  int
	pipelines  []string
}

func New(processor *service.Processor, dispatcher *service.Dispatcher, poller *service.Poller, batchSize int, pipelines []string) *Sweeper {
	return &Sweeper{
		processor:  processor,
		dispatcher: dispatcher,
		poller:     poller,
		batchSize:  batchSize,
		pipelines:  pipelines,
	}
}

// RunProcessor drains pending events every interval until ctx is cancelled.
func (s *Sweeper) RunProcessor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("processor sweep started", slog.Duration("interval", interval))
	s.processOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("processor sweep stopped")
			return
		case <-ticker.C:
			s.processOnce(ctx)
		}
	}
}

func (s *Sweeper) processOnce(ctx context.Context) {
	result, err := s.processor.ProcessPending(ctx, s.batchSize)
	if err != nil {
		slog.Error("processor sweep failed", logging.Error(err))
		return
	}
	if result.Processed > 0 {
		slog.Info("processor sweep completed", slog.Int("processed", result.Processed))
	}
}

// RunDispatcher sweeps the outbound queue every interval until ctx is
// cancelled.
func (s *Sweeper) RunDispatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("dispatcher sweep started", slog.Duration("interval", interval))
	s.dispatchOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("dispatcher sweep stopped")
			return
		case <-ticker.C:
			s.dispatchOnce(ctx)
		}
	}
}

func (s *Sweeper) dispatchOnce(ctx context.Context) {
	result, err := s.dispatcher.Dispatch(ctx)
	if err != nil {
		slog.Error("dispatcher sweep failed", logging.Error(err))
		return
	}
	if result.Processed > 0 {
		slog.Info("dispatcher sweep completed",
			slog.Int("processed", result.Processed),
			slog.Int("sent", result.Sent),
			slog.Int("failed", result.Failed))
	}
}

// RunPoller reconciles each configured pipeline every interval. An interval
// of zero disables the loop; polls can still be triggered over HTTP.
func (s *Sweeper) RunPoller(ctx context.Context, interval time.Duration) {
	if interval <= 0 || len(s.pipelines) == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("poller sweep started",
		slog.Duration("interval", interval),
		slog.Int("pipelines", len(s.pipelines)))

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller sweep stopped")
			return
		case <-ticker.C:
			for _, pipeline := range s.pipelines {
				result, err := s.poller.Poll(ctx, &models.PollRequest{PipelineID: pipeline})
				if err != nil {
					slog.Error("poll sweep failed", logging.Pipeline(pipeline), logging.Error(err))
					continue
				}
				if result.NewEventsCreated > 0 {
					slog.Info("poll sweep completed",
						logging.Pipeline(pipeline),
						slog.Int("new_events", result.NewEventsCreated))
				}
			}
		}
	}
}
