package document_store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// BlobProvider is the byte-level storage behind FileStore. Implementations
// cover the local filesystem and S3.
type BlobProvider interface {
	// Read reads the entire content of a blob. Missing blobs return ErrNotFound.
	Read(ctx context.Context, path string) ([]byte, error)

	// Write writes data to a blob, creating it if it doesn't exist.
	Write(ctx context.Context, path string, data []byte) error

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, path string) error

	// List returns blob paths under a prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// LocalBlobProvider implements BlobProvider on the local filesystem.
type LocalBlobProvider struct {
	baseDir string
}

// NewLocalBlobProvider creates a provider rooted at baseDir.
func NewLocalBlobProvider(baseDir string) *LocalBlobProvider {
	return &LocalBlobProvider{baseDir: baseDir}
}

// Read reads a blob from the local filesystem.
func (p *LocalBlobProvider) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(p.baseDir, path)) //nolint:gosec // G304: path is constructed from trusted baseDir
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

// Write writes data to a local blob, creating parent directories as needed.
func (p *LocalBlobProvider) Write(ctx context.Context, path string, data []byte) error {
	fullPath := filepath.Join(p.baseDir, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(fullPath, data, 0o600)
}

// Delete removes a local blob.
func (p *LocalBlobProvider) Delete(ctx context.Context, path string) error {
	err := os.Remove(filepath.Join(p.baseDir, path))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// List returns blob paths under a prefix.
func (p *LocalBlobProvider) List(ctx context.Context, prefix string) ([]string, error) {
	searchPath := filepath.Join(p.baseDir, prefix)

	var result []string
	err := filepath.Walk(searchPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			rel, relErr := filepath.Rel(p.baseDir, path)
			if relErr == nil {
				result = append(result, filepath.ToSlash(rel))
			}
		}
		return nil
	})
	if err != nil && os.IsNotExist(err) {
		return []string{}, nil
	}
	return result, err
}

// S3Client defines the S3 operations needed by S3BlobProvider.
type S3Client interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	PutObject(ctx context.Context, bucket, key string, data []byte) error
	DeleteObject(ctx context.Context, bucket, key string) error
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
}

// S3BlobProvider implements BlobProvider on AWS S3.
type S3BlobProvider struct {
	bucket string
	prefix string
	client S3Client
}

// NewS3BlobProvider creates a provider for the given bucket and key prefix.
func NewS3BlobProvider(bucket, prefix string, client S3Client) *S3BlobProvider {
	return &S3BlobProvider{bucket: bucket, prefix: prefix, client: client}
}

// Read reads a blob from S3.
func (p *S3BlobProvider) Read(ctx context.Context, path string) ([]byte, error) {
	return p.client.GetObject(ctx, p.bucket, p.key(path))
}

// Write writes a blob to S3.
func (p *S3BlobProvider) Write(ctx context.Context, path string, data []byte) error {
	return p.client.PutObject(ctx, p.bucket, p.key(path), data)
}

// Delete removes a blob from S3.
func (p *S3BlobProvider) Delete(ctx context.Context, path string) error {
	return p.client.DeleteObject(ctx, p.bucket, p.key(path))
}

// List returns blob paths under a prefix.
func (p *S3BlobProvider) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := p.client.ListObjects(ctx, p.bucket, p.key(prefix))
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, len(keys))
	prefixLen := len(p.key(""))
	for _, key := range keys {
		if len(key) > prefixLen {
			result = append(result, key[prefixLen:])
		}
	}
	return result, nil
}

func (p *S3BlobProvider) key(path string) string {
	if p.prefix == "" {
		return path
	}
	return p.prefix + "/" + path
}

// AWSS3Client implements the S3Client interface using AWS SDK v2.
type AWSS3Client struct {
	s3Client *s3.Client
}

// NewAWSS3Client creates a new AWS S3 client wrapper.
func NewAWSS3Client(s3Client *s3.Client) *AWSS3Client {
	return &AWSS3Client{s3Client: s3Client}
}

// GetObject retrieves an object from S3. Missing keys return ErrNotFound.
func (c *AWSS3Client) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get object %s from bucket %s: %w", key, bucket, err)
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

// PutObject uploads an object to S3.
func (c *AWSS3Client) PutObject(ctx context.Context, bucket, key string, data []byte) error {
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s to bucket %s: %w", key, bucket, err)
	}
	return nil
}

// DeleteObject removes an object from S3.
func (c *AWSS3Client) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s from bucket %s: %w", key, bucket, err)
	}
	return nil
}

// ListObjects returns all keys under a prefix, following pagination.
func (c *AWSS3Client) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in bucket %s: %w", bucket, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}
