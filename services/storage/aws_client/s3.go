package aws_client

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailvault/internal/tracing"
)

type S3Client interface {
	Upload(ctx context.Context, bucket, key string, body []byte) error
	Delete(ctx context.Context, bucket, key string) error
	Copy(ctx context.Context, bucket, fromKey, toKey string) error
}

type s3Client struct {
	Uploader *s3manager.Uploader
	Service  *s3.S3
	Config   *aws.Config
	Session  *session.Session
}

func NewS3Client(config *aws.Config) S3Client {
	s := session.Must(session.NewSession(config))
	return &s3Client{
		Uploader: s3manager.NewUploader(s),
		Service:  s3.New(s),
		Config:   config,
		Session:  s,
	}
}

func (s *s3Client) Upload(ctx context.Context, bucket, key string, body []byte) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "s3Client.Upload")
	defer span.Finish()
	tracing.TagComponentStorage(span)

	_, err := s.Uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	return err
}

func (s *s3Client) Delete(ctx context.Context, bucket, key string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "s3Client.Delete")
	defer span.Finish()
	tracing.TagComponentStorage(span)

	_, err := s.Service.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err
}

func (s *s3Client) Copy(ctx context.Context, bucket, fromKey, toKey string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "s3Client.Copy")
	defer span.Finish()
	tracing.TagComponentStorage(span)

	_, err := s.Service.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(bucket),
		CopySource: aws.String(bucket + "/" + fromKey),
		Key:        aws.String(toKey),
	})
	return err
}
