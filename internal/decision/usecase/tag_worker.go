package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"decisionlog-backend/internal/decision/repository"

	"go.uber.org/zap"
)

const tagJobTimeout = 60 * time.Second

// TagJob asks the model to label one decision
type TagJob struct {
	DecisionID string
	Summary    string
	Topic      string
}

// TagSuggester proposes tag names for a decision
type TagSuggester interface {
	SuggestTags(ctx context.Context, summary string, existing []string) ([]string, error)
}

// TagWorkerService attaches model-suggested tags in the background
type TagWorkerService struct {
	tags        repository.TagRepository
	suggester   TagSuggester
	log         *zap.Logger
	jobQueue    chan TagJob
	workerWg    sync.WaitGroup
	workerCount int
	started     bool
	stopped     bool
	mu          sync.Mutex
}

// NewTagWorkerService creates a new tag worker service
func NewTagWorkerService(tags repository.TagRepository, suggester TagSuggester, workerCount int, log *zap.Logger) *TagWorkerService {
	if workerCount <= 0 {
		workerCount = 3 // Default to 3 workers
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &TagWorkerService{
		tags:        tags,
		suggester:   suggester,
		log:         log.Named("tag_worker"),
		jobQueue:    make(chan TagJob, 500), // Buffered channel
		workerCount: workerCount,
	}
}

// Start starts the tag workers
func (s *TagWorkerService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}

	for i := 0; i < s.workerCount; i++ {
		s.workerWg.Add(1)
		go s.worker(i)
	}
	s.started = true
	s.log.Info("started tag workers", zap.Int("workers", s.workerCount))
}

// Stop drains the queue and waits for workers to finish
func (s *TagWorkerService) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.jobQueue)
	s.mu.Unlock()

	s.workerWg.Wait()
	s.log.Info("all tag workers stopped")
}

func (s *TagWorkerService) worker(id int) {
	defer s.workerWg.Done()

	for job := range s.jobQueue {
		s.processJob(job)
	}

	s.log.Debug("tag worker stopped", zap.Int("worker", id))
}

func (s *TagWorkerService) processJob(job TagJob) {
	if s.suggester == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), tagJobTimeout)
	defer cancel()

	existing, err := s.tags.ListNames(ctx)
	if err != nil {
		s.log.Warn("failed to load tags", zap.Error(err))
		return
	}

	text := strings.TrimSpace(job.Summary + "\nTopic: " + job.Topic)
	suggested, err := s.suggester.SuggestTags(ctx, text, existing)
	if err != nil {
		s.log.Warn("tag suggestion failed", zap.String("decision_id", job.DecisionID), zap.Error(err))
		return
	}

	names := ResolveTags(suggested, existing)
	if err := attachTags(ctx, s.tags, job.DecisionID, names); err != nil {
		s.log.Warn("failed to attach tags", zap.String("decision_id", job.DecisionID), zap.Error(err))
		return
	}
	s.log.Debug("tagged decision", zap.String("decision_id", job.DecisionID), zap.Strings("tags", names))
}

// QueueJob adds a single job to the queue (non-blocking)
func (s *TagWorkerService) QueueJob(job TagJob) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	select {
	case s.jobQueue <- job:
		return true
	default:
		return false // Queue full
	}
}
