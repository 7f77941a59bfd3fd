package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pagegate-org/pagegate/internal/config"
	"github.com/pagegate-org/pagegate/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrExpired doubles as the miss signal: callers treat absent and expired
// entries the same way and go upstream.
var ErrExpired = errors.New("cache entry expired")

// S3Storage keeps asset bodies in the bucket and the paired content-type /
// expiry row in postgres.
type S3Storage struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	cfg      *config.Config
	db       *gorm.DB
	log      *logrus.Entry
}

func NewS3Storage(logger *logrus.Logger, cfg *config.Config, db *gorm.DB) *S3Storage {
	awsConfig := &aws.Config{
		Region:           aws.String(cfg.S3Region),
		Credentials:      credentials.NewStaticCredentials(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	}

	if cfg.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.S3Endpoint)
	}

	sess := session.Must(session.NewSession(awsConfig))

	return &S3Storage{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		cfg:      cfg,
		db:       db,
		log:      logger.WithField("component", "asset_storage"),
	}
}

func (s *S3Storage) Get(ctx context.Context, key string) ([]byte, string, error) {
	var entry models.AssetCache
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&entry).Error; err != nil {
		return nil, "", err
	}

	if time.Now().After(entry.ExpiresAt) {
		if err := s.Delete(ctx, key); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("Failed to delete expired asset")
		}
		return nil, "", ErrExpired
	}

	resp, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	if err := s.UpdateLastAccess(ctx, key); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("Failed to update last access")
	}

	return content, entry.MediaType, nil
}

func (s *S3Storage) Put(ctx context.Context, key, sourceURL string, content []byte, mediaType string, ttl time.Duration) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.cfg.S3Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(mediaType),
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}

	entry := models.AssetCache{
		Key:        key,
		SourceURL:  sourceURL,
		MediaType:  mediaType,
		SizeBytes:  int64(len(content)),
		StoredAt:   time.Now(),
		ExpiresAt:  time.Now().Add(ttl),
		LastAccess: time.Now(),
	}

	if err := s.db.WithContext(ctx).Save(&entry).Error; err != nil {
		return fmt.Errorf("failed to save asset cache entry: %w", err)
	}

	return nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.S3Bucket),
		Key:    aws.String(key),
	})

	if dbErr := s.db.Where("key = ?", key).Delete(&models.AssetCache{}).Error; dbErr != nil {
		s.log.WithError(dbErr).WithField("key", key).Warn("Failed to delete asset cache row")
	}

	return err
}

func (s *S3Storage) UpdateLastAccess(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Model(&models.AssetCache{}).
		Where("key = ?", key).
		Update("last_access", time.Now()).Error
}
