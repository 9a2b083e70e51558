package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/tracing"
	"github.com/customeros/mailvault/internal/utils"
)

const (
	tempPrefix        = ".tmp-"
	artifactExtension = ".eml"
	maxSubjectInName  = 80
	maxCollisionTries = 100
)

type localArchiveStorage struct {
	root           string
	quarantineRoot string
}

// NewLocalArchiveStorage returns an ArchiveStorage rooted at archiveRoot.
// Artifacts are written to a temp file first and linked into their final
// name, so an interrupted write never leaves a partial file under a final
// name and concurrent writers cannot overwrite each other.
func NewLocalArchiveStorage(archiveRoot, quarantineRoot string) (interfaces.ArchiveStorage, error) {
	if archiveRoot == "" {
		return nil, errors.New("archive root is required")
	}
	if quarantineRoot == "" {
		quarantineRoot = filepath.Join(archiveRoot, "_quarantine")
	}
	if err := os.MkdirAll(archiveRoot, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create archive root")
	}

	return &localArchiveStorage{
		root:           archiveRoot,
		quarantineRoot: quarantineRoot,
	}, nil
}

func (s *localArchiveStorage) StoreArtifact(ctx context.Context, content []byte, folderPath, subject string, receivedAt time.Time) (string, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "localArchiveStorage.StoreArtifact")
	defer span.Finish()
	tracing.TagComponentStorage(span)

	dir := filepath.Join(s.root, filepath.FromSlash(folderPath))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		tracing.TraceErr(span, err)
		return "", errors.Wrap(err, "failed to create folder directory")
	}

	base := fmt.Sprintf("%s_%s",
		receivedAt.UTC().Format("20060102_150405"),
		utils.SanitizeFilename(subject, maxSubjectInName))

	tmpName, err := writeTemp(dir, content)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	defer os.Remove(tmpName)

	name, err := claimName(tmpName, dir, base)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	return filepath.ToSlash(filepath.Join(folderPath, name)), nil
}

func (s *localArchiveStorage) MoveArtifact(ctx context.Context, fromPath, toFolderPath string) (string, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "localArchiveStorage.MoveArtifact")
	defer span.Finish()
	tracing.TagComponentStorage(span)

	src := filepath.Join(s.root, filepath.FromSlash(fromPath))
	destDir := filepath.Join(s.root, filepath.FromSlash(toFolderPath))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		tracing.TraceErr(span, err)
		return "", errors.Wrap(err, "failed to create destination directory")
	}

	fileName := filepath.Base(src)
	name, err := claimName(src, destDir, strings.TrimSuffix(fileName, artifactExtension))
	if err != nil {
		tracing.TraceErr(span, err)
		return "", errors.Wrap(err, "failed to move artifact")
	}
	if err := os.Remove(src); err != nil {
		tracing.TraceErr(span, err)
		return "", errors.Wrap(err, "failed to remove moved artifact")
	}

	return filepath.ToSlash(filepath.Join(toFolderPath, name)), nil
}

func (s *localArchiveStorage) MoveToQuarantine(ctx context.Context, fromPath string) (string, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "localArchiveStorage.MoveToQuarantine")
	defer span.Finish()
	tracing.TagComponentStorage(span)

	src := filepath.Join(s.root, filepath.FromSlash(fromPath))
	// Quarantine mirrors the original folder/date layout.
	dest := filepath.Join(s.quarantineRoot, filepath.FromSlash(fromPath))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		tracing.TraceErr(span, err)
		return "", errors.Wrap(err, "failed to create quarantine directory")
	}

	if err := os.Rename(src, dest); err != nil {
		tracing.TraceErr(span, err)
		return "", errors.Wrap(err, "failed to quarantine artifact")
	}

	// Report root-relative paths when the quarantine area lives inside the
	// archive root, absolute otherwise.
	if rel, err := filepath.Rel(s.root, dest); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel), nil
	}
	return filepath.ToSlash(dest), nil
}

func (s *localArchiveStorage) GetSize(ctx context.Context, path string) (int64, error) {
	info, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(path)))
	if err != nil {
		return 0, errors.Wrap(err, "failed to stat artifact")
	}
	return info.Size(), nil
}

// SweepTemp removes temp files left behind by an interrupted run.
func (s *localArchiveStorage) SweepTemp(ctx context.Context) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "localArchiveStorage.SweepTemp")
	defer span.Finish()
	tracing.TagComponentStorage(span)

	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasPrefix(d.Name(), tempPrefix) {
			if rmErr := os.Remove(path); rmErr != nil {
				tracing.TraceErr(span, rmErr)
			}
		}
		return nil
	})
}

// claimName hard-links src into dir under base, appending a numeric suffix
// until a link succeeds. Linking fails when the target already exists, so two
// concurrent writers can never end up sharing one final name the way a
// stat-then-rename check could.
func claimName(src, dir, base string) (string, error) {
	name := base + artifactExtension
	for i := 0; i < maxCollisionTries; i++ {
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", base, i, artifactExtension)
		}
		err := os.Link(src, filepath.Join(dir, name))
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", errors.Wrap(err, "failed to claim artifact name")
		}
	}
	return "", errors.Errorf("could not find an available artifact name for %s", base)
}

// writeTemp writes content to a synced temp file in dir and returns its path.
func writeTemp(dir string, content []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", errors.Wrap(err, "failed to write artifact")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", errors.Wrap(err, "failed to sync artifact")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", errors.Wrap(err, "failed to close temp file")
	}
	return tmpName, nil
}
