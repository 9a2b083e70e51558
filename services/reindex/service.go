package reindex

import (
	"context"
	"io/fs"
	"net/mail"
	"os"
	"path/filepath"
	"strings"

	"github.com/jhillyerd/enmime"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/internal/repository"
	"github.com/customeros/mailvault/internal/tracing"
	"github.com/customeros/mailvault/internal/utils"
)

const quarantineDirName = "_quarantine"

// Result summarizes one reindex pass.
type Result struct {
	Scanned  int
	Indexed  int
	Skipped  int
	Failures int
}

// reindexService rebuilds missing index rows from the artifacts on disk. It
// is the recovery path for a lost or partially restored database: artifacts
// are the durable source of truth, rows are derived.
type reindexService struct {
	archiveRoot  string
	log          logger.Logger
	repositories *repository.Repositories
}

func NewReindexService(archiveRoot string, log logger.Logger, repositories *repository.Repositories) *reindexService {
	return &reindexService{
		archiveRoot:  archiveRoot,
		log:          log,
		repositories: repositories,
	}
}

// Run walks the archive tree and indexes every artifact whose Message-ID is
// not already known. Individual parse failures are counted and logged, they
// never abort the walk.
func (s *reindexService) Run(ctx context.Context) (*Result, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "ReindexService.Run")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("archive_root", s.archiveRoot)

	result := &Result{}

	err := filepath.WalkDir(s.archiveRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == quarantineDirName {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".eml") {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		result.Scanned++
		if err := s.indexArtifact(ctx, path, result); err != nil {
			result.Failures++
			s.log.Warnf("reindex failed for %s: %v", path, err)
		}
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return result, err
	}

	span.LogFields(
		tracingLog.Int("result.scanned", result.Scanned),
		tracingLog.Int("result.indexed", result.Indexed),
		tracingLog.Int("result.skipped", result.Skipped),
		tracingLog.Int("result.failures", result.Failures),
	)
	s.log.Infof("reindex done: %d scanned, %d indexed, %d skipped, %d failures",
		result.Scanned, result.Indexed, result.Skipped, result.Failures)
	return result, nil
}

func (s *reindexService) indexArtifact(ctx context.Context, path string, result *Result) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	envelope, err := enmime.ReadEnvelope(file)
	if err != nil {
		return errors.Wrap(err, "failed to parse artifact")
	}

	internetMessageID := utils.NormalizeMessageID(envelope.GetHeader("Message-ID"))
	if internetMessageID != "" {
		known, err := s.repositories.MessageRepository.ExistsByInternetMessageID(ctx, internetMessageID)
		if err != nil {
			return err
		}
		if known {
			result.Skipped++
			return nil
		}
	}

	relPath, err := filepath.Rel(s.archiveRoot, path)
	if err != nil {
		relPath = path
	}

	info, err := file.Stat()
	if err != nil {
		return err
	}

	// Reindexed rows get synthetic identifiers; a later delta sync of the
	// same item dedupes on Message-ID during its own reindex, not here.
	id := utils.GenerateNanoIDWithPrefix("reidx", 21)
	message := &models.Message{
		ID:                id,
		ImmutableID:       id,
		ArtifactPath:      relPath,
		FolderPath:        filepath.ToSlash(filepath.Dir(relPath)),
		Subject:           envelope.GetHeader("Subject"),
		Sender:            envelope.GetHeader("From"),
		Recipients:        splitAddresses(envelope.GetHeader("To")),
		Size:              info.Size(),
		HasAttachments:    len(envelope.Attachments) > 0,
		InternetMessageID: internetMessageID,
		CreatedAt:         utils.Now(),
	}
	if date, err := mail.ParseDate(envelope.GetHeader("Date")); err == nil {
		message.ReceivedAt = date.UTC()
	}

	if err := s.repositories.MessageRepository.Create(ctx, message); err != nil {
		return err
	}
	result.Indexed++
	return nil
}

func splitAddresses(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
