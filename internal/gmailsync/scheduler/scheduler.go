package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Syncer runs one scheduled pass over every connected mailbox.
type Syncer interface {
	SyncAll(ctx context.Context) int
}

// SyncScheduler periodically triggers Gmail sync for all connected users
type SyncScheduler struct {
	syncer   Syncer
	interval time.Duration
	log      *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	started  bool
	done     chan struct{}
}

// NewSyncScheduler creates a new scheduler. An interval of zero disables it.
func NewSyncScheduler(syncer Syncer, interval time.Duration, log *zap.Logger) *SyncScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SyncScheduler{
		syncer:   syncer,
		interval: interval,
		log:      log.Named("gmail_scheduler"),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the scheduler loop
func (s *SyncScheduler) Start() {
	s.started = true
	if s.interval <= 0 {
		s.log.Info("gmail sync scheduler disabled")
		close(s.done)
		return
	}

	s.log.Info("starting gmail sync scheduler", zap.Duration("interval", s.interval))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-s.stopChan
		cancel()
	}()

	go func() {
		defer close(s.done)

		// Run immediately on start
		s.runOnce(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runOnce(ctx)
			case <-s.stopChan:
				s.log.Info("gmail sync scheduler stopped")
				return
			}
		}
	}()
}

// Stop cancels the running pass and waits for the loop to exit
func (s *SyncScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	if s.started {
		<-s.done
	}
}

func (s *SyncScheduler) runOnce(ctx context.Context) {
	start := time.Now()
	n := s.syncer.SyncAll(ctx)
	if n > 0 {
		s.log.Info("scheduled gmail sync finished", zap.Int("mailboxes", n), zap.Duration("took", time.Since(start)))
	}
}
