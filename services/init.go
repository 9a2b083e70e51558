package services

import (
	"context"
	"time"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/config"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/repository"
	"github.com/customeros/mailvault/services/archive"
	"github.com/customeros/mailvault/services/events"
	"github.com/customeros/mailvault/services/source/graph"
	"github.com/customeros/mailvault/services/storage"
)

type Services struct {
	Logger         logger.Logger
	ArchiveService interfaces.ArchiveService
	ArchiveStorage interfaces.ArchiveStorage
	MessageSource  interfaces.MessageSource
	EventPublisher interfaces.EventPublisher
}

func InitServices(
	ctx context.Context,
	log logger.Logger,
	repos *repository.Repositories,
	appConfig *config.AppConfig,
	graphConfig *config.GraphConfig,
	archiveConfig *config.ArchiveConfig,
	r2Config *config.R2StorageConfig,
) (*Services, error) {
	// message source
	source, err := graph.NewGraphSource(ctx, graphConfig, log)
	if err != nil {
		return nil, err
	}

	// artifact storage, optionally mirrored offsite
	store, err := storage.NewLocalArchiveStorage(archiveConfig.ArchiveRoot, archiveConfig.QuarantineRoot)
	if err != nil {
		return nil, err
	}
	if r2Config.AccountID != "" && r2Config.AccessKeyID != "" {
		store = storage.NewR2MirrorStorage(store, r2Config.AccountID, r2Config.AccessKeyID, r2Config.AccessKeySecret, r2Config.ArchiveBucket, log)
		log.Infof("Offsite mirror enabled on bucket %s", r2Config.ArchiveBucket)
	}

	archiveService := archive.NewArchiveService(archive.Config{
		MailboxID:          graphConfig.MailboxUPN,
		CheckpointInterval: archiveConfig.CheckpointInterval,
		Parallelism:        archiveConfig.Parallelism,
		FallbackOverlap:    time.Duration(archiveConfig.FallbackOverlapMin) * time.Minute,
		DryRun:             archiveConfig.DryRun,
	}, log, repos, source, store)

	services := &Services{
		Logger:         log,
		ArchiveService: archiveService,
		ArchiveStorage: store,
		MessageSource:  source,
	}

	// events are optional, the archive works without a broker
	if appConfig.RabbitMQURL != "" {
		publisher, err := events.NewRabbitMQPublisher(appConfig.RabbitMQURL, graphConfig.MailboxUPN, log, nil)
		if err != nil {
			return nil, err
		}
		services.EventPublisher = publisher
		archiveService.SetEventPublisher(publisher)
	}

	return services, nil
}

// Close releases external connections held by the services.
func (s *Services) Close() error {
	if s.EventPublisher != nil {
		return s.EventPublisher.Close()
	}
	return nil
}
