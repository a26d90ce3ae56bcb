package analytics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nulzo/streamchat/internal/store"
	"github.com/nulzo/streamchat/internal/store/model"
)

// Ingestor handles the asynchronous persistence of stream logs.
type Ingestor interface {
	Log(log *model.StreamLog)
	Start(ctx context.Context)
	// Stop flushes buffered logs and waits for the worker to exit.
	Stop()
}

type Option func(*ingestor)

func WithBatchSize(n int) Option {
	return func(i *ingestor) { i.batchSize = n }
}

func WithFlushInterval(d time.Duration) Option {
	return func(i *ingestor) { i.flushTime = d }
}

func WithBufferSize(n int) Option {
	return func(i *ingestor) { i.logChan = make(chan *model.StreamLog, n) }
}

type ingestor struct {
	logger    *zap.Logger
	repo      store.Repository
	logChan   chan *model.StreamLog
	batchSize int
	flushTime time.Duration

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

func NewIngestor(logger *zap.Logger, repo store.Repository, opts ...Option) Ingestor {
	i := &ingestor{
		logger:    logger,
		repo:      repo,
		logChan:   make(chan *model.StreamLog, 10000),
		batchSize: 50,
		flushTime: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *ingestor) Log(log *model.StreamLog) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.stopped {
		return
	}
	select {
	case i.logChan <- log:
	default:
		i.logger.Warn("Analytics buffer full, dropping log", zap.String("stream_id", log.ID))
	}
}

func (i *ingestor) Start(ctx context.Context) {
	i.wg.Add(1)
	go i.worker(ctx)
}

func (i *ingestor) Stop() {
	i.mu.Lock()
	if !i.stopped {
		i.stopped = true
		close(i.logChan)
	}
	i.mu.Unlock()
	i.wg.Wait()
}

func (i *ingestor) worker(ctx context.Context) {
	defer i.wg.Done()

	batch := make([]*model.StreamLog, 0, i.batchSize)
	ticker := time.NewTicker(i.flushTime)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		err := i.repo.WithTx(context.Background(), func(repo store.Repository) error {
			for _, log := range batch {
				if err := repo.StreamLogs().Log(context.Background(), log); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			i.logger.Error("Failed to persist stream logs", zap.Int("count", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case log, ok := <-i.logChan:
			if !ok {
				flush()
				return
			}
			batch = append(batch, log)
			if len(batch) >= i.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			flush()
			return
		}
	}
}
