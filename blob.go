package cheat_report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/r4g3baby/cheat-report/config"
)

type (
	// Evidence is an uploaded file staged on local disk until the pipeline
	// hands it to a BlobStore.
	Evidence struct {
		Path        string
		Filename    string
		ContentType string
	}

	// BlobStore persists evidence and returns its public URL.
	BlobStore interface {
		Store(ctx context.Context, evidence Evidence) (string, error)
	}

	CloudinaryStore struct {
		cld    *cloudinary.Cloudinary
		folder string
	}

	S3Store struct {
		client    objectPutter
		bucket    string
		prefix    string
		publicURL string
	}

	objectPutter interface {
		PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	}
)

// NewBlobStore builds the configured backend. It returns nil when evidence
// uploads are disabled or the backend has no credentials.
func NewBlobStore(ctx context.Context, cfg config.Blob) (BlobStore, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return nil, nil
	case "cloudinary":
		if cfg.Cloudinary.CloudName == "" {
			return nil, nil
		}
		return NewCloudinaryStore(cfg.Cloudinary)
	case "s3", "r2":
		if cfg.S3.Bucket == "" {
			return nil, nil
		}
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown blob provider %q", cfg.Provider)
	}
}

func NewCloudinaryStore(cfg config.Cloudinary) (*CloudinaryStore, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudinary client: %w", err)
	}
	return &CloudinaryStore{cld: cld, folder: cfg.Folder}, nil
}

func (store *CloudinaryStore) Store(ctx context.Context, evidence Evidence) (string, error) {
	result, err := store.cld.Upload.Upload(ctx, evidence.Path, uploader.UploadParams{
		Folder:         store.folder,
		ResourceType:   "auto",
		UseFilename:    api.Bool(true),
		UniqueFilename: api.Bool(false),
	})
	if err != nil {
		return "", err
	}
	if result.Error.Message != "" {
		return "", errors.New(result.Error.Message)
	}
	if result.SecureURL == "" {
		return "", errors.New("cloudinary returned no url")
	}
	return result.SecureURL, nil
}

func NewS3Store(ctx context.Context, cfg config.S3) (*S3Store, error) {
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion(cfg.Region),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}

	return &S3Store{
		client:    client,
		bucket:    cfg.Bucket,
		prefix:    cfg.Prefix,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}, nil
}

func (store *S3Store) Store(ctx context.Context, evidence Evidence) (string, error) {
	file, err := os.Open(evidence.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open evidence: %w", err)
	}
	defer func() { _ = file.Close() }()

	key := objectKey(store.prefix, evidence.Filename)
	input := &s3.PutObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(key),
		Body:   file,
	}
	if evidence.ContentType != "" {
		input.ContentType = aws.String(evidence.ContentType)
	}

	if _, err := store.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload to s3: %w", err)
	}
	return fmt.Sprintf("%s/%s", store.publicURL, key), nil
}

func objectKey(prefix, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	name := slug.Make(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
	if name == "" {
		name = "evidence"
	}

	key := fmt.Sprintf("%s-%s%s", uuid.NewString(), name, ext)
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}
	return key
}
