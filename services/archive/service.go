package archive

import (
	"sync"
	"time"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/repository"
	"github.com/customeros/mailvault/internal/retry"
)

const (
	DefaultCheckpointInterval = 10
	DefaultParallelism        = 4
	DefaultFallbackOverlap    = 60 * time.Minute
)

type Config struct {
	MailboxID string
	// CheckpointInterval is the mini-batch size K: progress is persisted
	// after every K materialized items, bounding re-work on interruption.
	CheckpointInterval int
	// Parallelism bounds concurrent downloads within one checkpoint group.
	Parallelism int
	// FallbackOverlap widens the date-fallback window so items received
	// around the last sync time are re-examined.
	FallbackOverlap time.Duration
	DryRun          bool
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = DefaultCheckpointInterval
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	if cfg.FallbackOverlap <= 0 {
		cfg.FallbackOverlap = DefaultFallbackOverlap
	}
	return cfg
}

type archiveService struct {
	cfg          Config
	log          logger.Logger
	repositories *repository.Repositories
	source       interfaces.MessageSource
	storage      interfaces.ArchiveStorage
	retryCfg     retry.Config

	transformer interfaces.MessageTransformer
	publisher   interfaces.EventPublisher
	reporter    interfaces.ProgressReporter

	runningMutex sync.Mutex
	running      bool
}

func NewArchiveService(
	cfg Config,
	log logger.Logger,
	repositories *repository.Repositories,
	source interfaces.MessageSource,
	storage interfaces.ArchiveStorage,
) interfaces.ArchiveService {
	return &archiveService{
		cfg:          cfg.withDefaults(),
		log:          log,
		repositories: repositories,
		source:       source,
		storage:      storage,
		retryCfg:     retry.DefaultConfig(),
	}
}

// SetTransformer attaches the derived-format renderer invoked per freshly
// materialized message.
func (s *archiveService) SetTransformer(t interfaces.MessageTransformer) {
	s.transformer = t
}

// SetEventPublisher attaches the archive event publisher.
func (s *archiveService) SetEventPublisher(p interfaces.EventPublisher) {
	s.publisher = p
}

// SetProgressReporter attaches the progress sink. The core works unchanged
// with no reporter attached.
func (s *archiveService) SetProgressReporter(r interfaces.ProgressReporter) {
	s.reporter = r
}

func (s *archiveService) IsRunning() bool {
	s.runningMutex.Lock()
	defer s.runningMutex.Unlock()
	return s.running
}

func (s *archiveService) tryStart() bool {
	s.runningMutex.Lock()
	defer s.runningMutex.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *archiveService) finish() {
	s.runningMutex.Lock()
	defer s.runningMutex.Unlock()
	s.running = false
}

// runCounters aggregates item-level outcomes across the run.
type runCounters struct {
	synced  int
	skipped int
	errors  int
	moved   int
	deleted int
}

func (s *archiveService) report(snapshot interfaces.ProgressSnapshot) {
	if s.reporter == nil {
		return
	}
	s.reporter.Report(snapshot)
}
