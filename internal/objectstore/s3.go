// Package objectstore stores uploaded files in an S3-compatible bucket
// (MinIO in development) and hands out URLs for them.
package objectstore

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/emissionkeeper/internal/logging"
	"github.com/dmitrijs2005/emissionkeeper/internal/netx"
)

const uploadURLTTL = 15 * time.Minute

type Config struct {
	AccessKey    string
	SecretKey    string
	Bucket       string
	Region       string
	BaseEndpoint string
	// PublicBaseURL, when set, is used verbatim as the prefix of download
	// URLs instead of presigning them.
	PublicBaseURL string
	PresignTTL    time.Duration
}

type presigner interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store uploads through presigned PUT URLs and resolves download URLs
// either from PublicBaseURL or by presigning a GET.
type S3Store struct {
	presign    presigner
	httpClient *http.Client
	cfg        Config
	log        logging.Logger
}

// New builds the S3 client from static credentials. No request is made.
func New(ctx context.Context, cfg Config, log logging.Logger) (*S3Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(strings.TrimRight(cfg.BaseEndpoint, "/"))
			o.UsePathStyle = true
		}
	})

	return newStore(s3.NewPresignClient(client), cfg, log), nil
}

func newStore(p presigner, cfg Config, log logging.Logger) *S3Store {
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 7 * 24 * time.Hour
	}
	if log == nil {
		log = logging.Nop()
	}
	return &S3Store{
		presign:    p,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		cfg:        cfg,
		log:        log,
	}
}

// Store uploads data under key objectPath and returns the key as the
// stored reference.
func (s *S3Store) Store(ctx context.Context, objectPath string, data []byte) (string, error) {
	key := strings.TrimPrefix(objectPath, "/")
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(uploadURLTTL))
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", key, err)
	}

	if err := netx.PutPresigned(ctx, s.httpClient, req.URL, data, contentType); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}

	s.log.Debug(ctx, "object stored", "bucket", s.cfg.Bucket, "key", key, "size", len(data))
	return key, nil
}

// ResolveURL returns a URL a browser can download ref from.
func (s *S3Store) ResolveURL(ctx context.Context, ref string) (string, error) {
	if s.cfg.PublicBaseURL != "" {
		base, err := url.Parse(s.cfg.PublicBaseURL)
		if err != nil {
			return "", fmt.Errorf("invalid public base url: %w", err)
		}
		return base.JoinPath(strings.Split(ref, "/")...).String(), nil
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(ref),
	}, s3.WithPresignExpires(s.cfg.PresignTTL))
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", ref, err)
	}
	return req.URL, nil
}
