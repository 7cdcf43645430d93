// Package storage issues presigned S3 URLs for source uploads and dubbed
// output downloads. The daemon never proxies media bytes itself; clients
// exchange them with the bucket directly.
package storage

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"

	"dubber/internal/config"
)

const defaultPresignExpiry = 15 * time.Minute

// Presigner signs time-limited upload and download URLs against the
// configured bucket.
type Presigner struct {
	s3Service    s3iface.S3API
	bucket       string
	uploadPrefix string
	expiry       time.Duration
}

// New builds a presigner from the storage configuration.
func New(cfg config.Storage) (*Presigner, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("storage: bucket required")
	}

	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	awsSession, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create session: %w", err)
	}

	return NewWithService(s3.New(awsSession), cfg), nil
}

// NewWithService builds a presigner on an existing S3 API, used by tests.
func NewWithService(svc s3iface.S3API, cfg config.Storage) *Presigner {
	expiry := defaultPresignExpiry
	if cfg.PresignExpirySeconds > 0 {
		expiry = time.Duration(cfg.PresignExpirySeconds) * time.Second
	}
	prefix := strings.Trim(strings.TrimSpace(cfg.UploadPrefix), "/")
	if prefix == "" {
		prefix = "uploads"
	}
	return &Presigner{
		s3Service:    svc,
		bucket:       strings.TrimSpace(cfg.Bucket),
		uploadPrefix: prefix,
		expiry:       expiry,
	}
}

// Upload describes a signed upload: where the client should PUT the bytes and
// the object key to submit with the job.
type Upload struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// SignUpload returns a presigned PUT URL for a fresh object key derived from
// the supplied filename.
func (p *Presigner) SignUpload(filename string) (Upload, error) {
	filename = path.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == "/" {
		return Upload{}, errors.New("storage: filename required")
	}
	key := path.Join(p.uploadPrefix, uuid.NewString()+"-"+filename)

	req, _ := p.s3Service.PutObjectRequest(&s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(p.expiry)
	if err != nil {
		return Upload{}, fmt.Errorf("storage: sign upload: %w", err)
	}
	return Upload{URL: url, Key: key}, nil
}

// SignDownload returns a presigned GET URL for an existing object key.
func (p *Presigner) SignDownload(key string) (string, error) {
	key = strings.Trim(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("storage: object key required")
	}

	req, _ := p.s3Service.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(p.expiry)
	if err != nil {
		return "", fmt.Errorf("storage: sign download: %w", err)
	}
	return url, nil
}
