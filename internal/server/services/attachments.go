package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dstepanovs/teamplan/internal/common"
	"github.com/dstepanovs/teamplan/internal/logging"
	"github.com/dstepanovs/teamplan/internal/server/authz"
	"github.com/dstepanovs/teamplan/internal/server/config"
	"github.com/dstepanovs/teamplan/internal/server/store"
)

// Seams for tests that exercise presign failures without a live S3 endpoint.
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

const presignValidity = 15 * time.Minute

// AttachmentService hands out presigned S3 URLs for project file
// attachments. Bytes flow between the client and the bucket directly; the
// server only authorizes and mints URLs, keyed under the project so a URL
// for one project never names another's objects.
type AttachmentService struct {
	store  store.Store
	config *config.Config
	log    logging.Logger
}

func NewAttachmentService(st store.Store, cfg *config.Config, log logging.Logger) *AttachmentService {
	return &AttachmentService{
		store:  st,
		config: cfg,
		log:    log.With("module", "attachments"),
	}
}

func storageKey(projectID string) string {
	d := time.Now()
	return fmt.Sprintf("projects/%s/%d/%d/%d/%v", projectID, d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *AttachmentService) presignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
	})

	return newS3PresignClient(client), nil
}

// PresignUpload returns a storage key and a presigned PUT URL for a new
// attachment on a project the principal can edit.
func (s *AttachmentService) PresignUpload(ctx context.Context, principal authz.Principal, projectID string) (string, string, error) {
	_, target, err := loadProjectTarget(ctx, s.store, projectID)
	if err != nil {
		return "", "", err
	}
	if !authz.CanRead(principal, target) {
		return "", "", common.ErrNotFound
	}
	if !authz.CanEdit(principal, target) {
		return "", "", common.ErrForbidden
	}

	pc, err := s.presignClient(ctx)
	if err != nil {
		return "", "", err
	}

	bucket := s.config.S3Bucket
	key := storageKey(projectID)

	req, err := presignPutObject(pc, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignValidity))
	if err != nil {
		return "", "", err
	}
	s.log.Info(ctx, "upload URL issued", "projectID", projectID)

	return key, req.URL, nil
}

// PresignDownload returns a presigned GET URL for an existing attachment key.
// The key must belong to the project; any member may download.
func (s *AttachmentService) PresignDownload(ctx context.Context, principal authz.Principal, projectID, key string) (string, error) {
	_, target, err := loadProjectTarget(ctx, s.store, projectID)
	if err != nil {
		return "", err
	}
	if !authz.CanRead(principal, target) {
		return "", common.ErrNotFound
	}
	if !keyBelongsToProject(key, projectID) {
		return "", fmt.Errorf("key outside project: %w", common.ErrValidation)
	}

	pc, err := s.presignClient(ctx)
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket
	req, err := presignGetObject(pc, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignValidity))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}

func keyBelongsToProject(key, projectID string) bool {
	prefix := "projects/" + projectID + "/"
	return len(key) > len(prefix) && key[:len(prefix)] == prefix
}
