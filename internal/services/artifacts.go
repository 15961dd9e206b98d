package services

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3API is the subset of the S3 client used by ArtifactStore
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArtifactStore uploads function code and templates, and downloads inputs such as
// route files
type ArtifactStore struct {
	client S3API
	bucket string
	region string
}

// NewArtifactStore returns a store writing to bucket
func NewArtifactStore(client S3API, bucket, region string) *ArtifactStore {
	return &ArtifactStore{
		client: client,
		bucket: bucket,
		region: region,
	}
}

// Bucket returns the artifact bucket
func (a *ArtifactStore) Bucket() string {
	return a.bucket
}

// DefaultArtifactBucket is the bucket used when none is configured
func DefaultArtifactBucket(service, account, region string) string {
	return fmt.Sprintf("%s-%s-%s-artifacts", service, account, region)
}

// CodeKey is the content addressed key for a code bundle
func CodeKey(service, stage, digest string) string {
	return fmt.Sprintf("%s/%s/code/%s.zip", service, stage, digest)
}

// TemplateKey is the content addressed key for a template body
func TemplateKey(service, stage, digest string) string {
	return fmt.Sprintf("%s/%s/templates/%s.json", service, stage, digest)
}

// Digest returns the hex sha256 of data
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// zipEpoch pins entry timestamps so identical trees produce identical archives
var zipEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// ZipDir archives the files under dir in lexical order. Symlinks to files are
// stored as the file they point to; any other entry that is not a regular file or
// directory fails the archive.
func ZipDir(dir string) ([]byte, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		mode := d.Type()
		if mode&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("broken symlink %s: %w", path, err)
			}
			mode = info.Mode().Type()
			if mode.IsDir() {
				return fmt.Errorf("symlinked directory %s cannot be packaged", path)
			}
		}

		switch {
		case mode.IsDir():
		case mode.IsRegular():
			paths = append(paths, path)
		default:
			return fmt.Errorf("unsupported file %s (%s)", path, mode)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	slices.Sort(paths)

	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for _, path := range paths {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil, err
		}

		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}

		header := &zip.FileHeader{
			Name:     filepath.ToSlash(rel),
			Method:   zip.Deflate,
			Modified: zipEpoch,
		}
		header.SetMode(info.Mode())

		entry, err := w.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", rel, err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if _, err := entry.Write(data); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// UploadCode zips dir and uploads it under a content addressed key
func (a *ArtifactStore) UploadCode(ctx context.Context, service, stage, dir string) (key string, err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		logger.Info().
			Str("dir", dir).
			Str("key", key).
			Interface("error", err).
			Dur("duration", time.Since(begin)).
			Msg("Uploaded code bundle")
	}(time.Now())

	data, err := ZipDir(dir)
	if err != nil {
		return "", err
	}

	key = CodeKey(service, stage, Digest(data))
	if err := a.Put(ctx, key, data, "application/zip"); err != nil {
		return "", err
	}

	return key, nil
}

// UploadTemplate uploads a template body and returns its https URL
func (a *ArtifactStore) UploadTemplate(ctx context.Context, service, stage string, body []byte) (string, error) {
	key := TemplateKey(service, stage, Digest(body))
	if err := a.Put(ctx, key, body, "application/json"); err != nil {
		return "", err
	}
	return a.URL(key), nil
}

// URL is the virtual hosted style URL CloudFormation accepts as a TemplateURL
func (a *ArtifactStore) URL(key string) string {
	if a.region == "" || a.region == "us-east-1" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", a.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", a.bucket, a.region, key)
}

// Put writes an object to the artifact bucket
func (a *ArtifactStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s to bucket %s: %w", key, a.bucket, err)
	}
	return nil
}

// Download reads an object from any bucket
func (a *ArtifactStore) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s from bucket %s: %w", key, bucket, err)
	}
	//goland:noinspection GoUnhandledErrorResult
	defer result.Body.Close()

	content, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object content: %w", err)
	}

	return content, nil
}
