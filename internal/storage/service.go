package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"backend-runtracker/internal/db"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const uploadTTL = 15 * time.Minute

var (
	ErrNotConfigured    = errors.New("photo storage not configured")
	ErrInvalidPhotoType = errors.New("content_type must be an image type")
)

// Presigner is the part of s3.PresignClient used for uploads.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Service struct {
	db        db.Querier
	presigner Presigner
	bucket    string
	region    string
	now       func() time.Time
}

// PhotoUpload tells the client where to PUT the file. PhotoURL is the
// address to attach to a journal entry once the upload is done.
type PhotoUpload struct {
	ID        string    `json:"id"`
	UploadURL string    `json:"upload_url"`
	Method    string    `json:"method"`
	PhotoURL  string    `json:"photo_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewService(db db.Querier, presigner Presigner, bucket, region string) *Service {
	return &Service{
		db:        db,
		presigner: presigner,
		bucket:    bucket,
		region:    region,
		now:       time.Now,
	}
}

// NewS3Presigner loads the default AWS credential chain for region.
func NewS3Presigner(ctx context.Context, region string) (*s3.PresignClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewPresignClient(s3.NewFromConfig(cfg)), nil
}

func (s *Service) PresignPhoto(ctx context.Context, runnerID, fileName, contentType string) (PhotoUpload, error) {
	if s.presigner == nil || s.bucket == "" {
		return PhotoUpload{}, ErrNotConfigured
	}
	if !strings.HasPrefix(contentType, "image/") {
		return PhotoUpload{}, ErrInvalidPhotoType
	}

	id := uuid.NewString()
	key := fmt.Sprintf("photos/%s/%s-%s", runnerID, id, cleanName(fileName))
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(uploadTTL))
	if err != nil {
		return PhotoUpload{}, fmt.Errorf("presign upload: %w", err)
	}

	upload := PhotoUpload{
		ID:        id,
		UploadURL: req.URL,
		Method:    req.Method,
		PhotoURL:  fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key),
		ExpiresAt: s.now().Add(uploadTTL),
	}
	if err := s.SaveObject(ctx, upload.ID, runnerID, key, upload.PhotoURL, contentType); err != nil {
		return PhotoUpload{}, err
	}
	return upload, nil
}

// SaveObject records the upload. Without Postgres the row is skipped.
func (s *Service) SaveObject(ctx context.Context, id, runnerID, key, url, contentType string) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO photos (id, runner_id, object_key, url, content_type)
		VALUES ($1,$2,$3,$4,$5)
	`, id, runnerID, key, url, contentType)
	return err
}

func cleanName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "photo"
	}
	return strings.ReplaceAll(name, " ", "_")
}
