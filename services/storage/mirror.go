package storage

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/services/storage/aws_client"
)

// mirrorStorage decorates a local ArchiveStorage with a best-effort offsite
// copy of every artifact. The local write is authoritative; mirror failures
// are logged and never fail the operation.
type mirrorStorage struct {
	local  interfaces.ArchiveStorage
	s3     aws_client.S3Client
	bucket string
	log    logger.Logger
}

// NewR2MirrorStorage wraps local with a Cloudflare R2 mirror.
func NewR2MirrorStorage(local interfaces.ArchiveStorage, accountID, accessKeyID, accessKeySecret, bucket string, log logger.Logger) interfaces.ArchiveStorage {
	s3Client := aws_client.NewS3Client(&aws.Config{
		Endpoint:         aws.String("https://" + accountID + ".r2.cloudflarestorage.com"),
		Region:           aws.String("auto"),
		Credentials:      credentials.NewStaticCredentials(accessKeyID, accessKeySecret, ""),
		S3ForcePathStyle: aws.Bool(true),
	})

	return &mirrorStorage{local: local, s3: s3Client, bucket: bucket, log: log}
}

// NewS3MirrorStorage wraps local with an AWS S3 mirror.
func NewS3MirrorStorage(local interfaces.ArchiveStorage, region, accessKeyID, accessKeySecret, bucket string, log logger.Logger) interfaces.ArchiveStorage {
	s3Client := aws_client.NewS3Client(&aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewStaticCredentials(accessKeyID, accessKeySecret, ""),
	})

	return &mirrorStorage{local: local, s3: s3Client, bucket: bucket, log: log}
}

func (s *mirrorStorage) StoreArtifact(ctx context.Context, content []byte, folderPath, subject string, receivedAt time.Time) (string, error) {
	path, err := s.local.StoreArtifact(ctx, content, folderPath, subject, receivedAt)
	if err != nil {
		return "", err
	}

	if err := s.s3.Upload(ctx, s.bucket, path, content); err != nil {
		s.log.Warnf("mirror upload failed for %s: %v", path, err)
	}

	return path, nil
}

func (s *mirrorStorage) MoveArtifact(ctx context.Context, fromPath, toFolderPath string) (string, error) {
	newPath, err := s.local.MoveArtifact(ctx, fromPath, toFolderPath)
	if err != nil {
		return "", err
	}

	if err := s.s3.Copy(ctx, s.bucket, fromPath, newPath); err != nil {
		s.log.Warnf("mirror copy failed for %s: %v", fromPath, err)
	} else if err := s.s3.Delete(ctx, s.bucket, fromPath); err != nil {
		s.log.Warnf("mirror cleanup failed for %s: %v", fromPath, err)
	}

	return newPath, nil
}

func (s *mirrorStorage) MoveToQuarantine(ctx context.Context, fromPath string) (string, error) {
	quarantinePath, err := s.local.MoveToQuarantine(ctx, fromPath)
	if err != nil {
		return "", err
	}

	if err := s.s3.Copy(ctx, s.bucket, fromPath, quarantinePath); err != nil {
		s.log.Warnf("mirror quarantine copy failed for %s: %v", fromPath, err)
	} else if err := s.s3.Delete(ctx, s.bucket, fromPath); err != nil {
		s.log.Warnf("mirror cleanup failed for %s: %v", fromPath, err)
	}

	return quarantinePath, nil
}

func (s *mirrorStorage) GetSize(ctx context.Context, path string) (int64, error) {
	return s.local.GetSize(ctx, path)
}

func (s *mirrorStorage) SweepTemp(ctx context.Context) error {
	return s.local.SweepTemp(ctx)
}
