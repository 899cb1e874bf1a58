package s3impl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ousepachn/insta-media-sync/internal/domain"
	"github.com/ousepachn/insta-media-sync/internal/mediapath"
	"github.com/ousepachn/insta-media-sync/internal/snapshot"
	"github.com/ousepachn/insta-media-sync/internal/storage"
	"github.com/ousepachn/insta-media-sync/pkg/config"
	"github.com/ousepachn/insta-media-sync/pkg/logger"
	"go.uber.org/fx"
)

type Opts struct {
	fx.In

	Config *config.Config
	Logger logger.Logger
}

type S3Store struct {
	client *s3.S3
	bucket string
	logger logger.Logger
}

var _ storage.ObjectStore = (*S3Store)(nil)

func New(opts Opts) (*S3Store, error) {
	awsCfg := aws.NewConfig().WithRegion(opts.Config.Storage.Region)
	if opts.Config.Storage.Endpoint != "" {
		// Custom endpoints (minio and friends) need path-style addressing.
		awsCfg = awsCfg.WithEndpoint(opts.Config.Storage.Endpoint).WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}

	return &S3Store{
		client: s3.New(sess),
		bucket: opts.Config.Storage.Bucket,
		logger: opts.Logger.WithComponent("S3Store"),
	}, nil
}

func (s *S3Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == "NotFound" || aerr.Code() == s3.ErrCodeNoSuchKey) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head %s: %w", path, err)
	}
	return true, nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var paths []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			paths = append(paths, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	return paths, nil
}

func (s *S3Store) PutBytes(ctx context.Context, path string, data []byte, contentType string) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", path, err)
	}
	return nil
}

func (s *S3Store) GetBytes(ctx context.Context, path string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", path, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func (s *S3Store) GetSnapshot(ctx context.Context, username string) (domain.RecordSet, bool, error) {
	data, err := s.GetBytes(ctx, mediapath.SnapshotPath(username))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return domain.RecordSet{Username: username}, false, nil
		}
		return domain.RecordSet{}, false, err
	}

	set, err := snapshot.Decode(data)
	if err != nil {
		return domain.RecordSet{}, false, err
	}
	return set, true, nil
}

func (s *S3Store) PutSnapshot(ctx context.Context, set domain.RecordSet) error {
	data, err := snapshot.Encode(set, time.Now())
	if err != nil {
		return err
	}
	s.logger.Debug("Persisting snapshot", "username", set.Username, "records", set.Len())
	return s.PutBytes(ctx, mediapath.SnapshotPath(set.Username), data, "application/json")
}
