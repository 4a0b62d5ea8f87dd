package bootstrap

import (
	"context"

	"scheduler_server/adapter/in/worker"
	"scheduler_server/config"
	"scheduler_server/pkg/logger"

	"github.com/rs/zerolog"
)

// Worker runs the background jobs: currently the pending-booking sweeper.
type Worker struct {
	sweeper *worker.PendingSweeper
	ctx     context.Context
	cancel  context.CancelFunc
	zlog    zerolog.Logger
}

func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}
	return NewWorkerWithDeps(deps), cleanup, nil
}

// NewWorkerWithDeps shares dependencies with an API running in the same process.
func NewWorkerWithDeps(deps *Dependencies) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		sweeper: deps.Sweeper,
		ctx:     ctx,
		cancel:  cancel,
		zlog:    logger.Component("worker"),
	}
}

// Start blocks until Stop is called.
func (w *Worker) Start() {
	if w.sweeper != nil {
		w.sweeper.Start()
		w.zlog.Info().Msg("Started Pending Sweeper")
	}
	<-w.ctx.Done()
}

func (w *Worker) Stop() {
	if w.sweeper != nil {
		w.sweeper.Stop()
	}
	w.cancel()
}
