// Package filearchive keeps a copy of every uploaded spreadsheet so an
// import can be traced back to the exact file it came from.
package filearchive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/JonMunkholm/archive/internal/logging"
)

// Archiver stores source files.
type Archiver interface {
	// Archive stores data and returns the object key. Files with the same
	// checksum are stored once.
	Archive(ctx context.Context, file File) (string, error)
}

// File is one uploaded spreadsheet.
type File struct {
	Name        string
	ContentType string
	Checksum    string
	Data        []byte
}

// Noop discards files. It is used when no bucket is configured.
type Noop struct{}

// Archive implements Archiver.
func (Noop) Archive(context.Context, File) (string, error) { return "", nil }

// S3API is the subset of the S3 client used here.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3 archives files into a bucket under prefix/YYYY/MM/DD/checksum-name.
type S3 struct {
	client S3API
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3 creates an S3 archiver.
func NewS3(client S3API, bucket, prefix string) *S3 {
	return &S3{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}
}

// Key returns the object key for f.
func (a *S3) Key(f File) string {
	name := path.Base(strings.ReplaceAll(f.Name, "\\", "/"))
	if name == "." || name == "/" {
		name = "upload"
	}
	day := a.now().UTC().Format("2006/01/02")
	return path.Join(a.prefix, day, f.Checksum+"-"+name)
}

// Archive implements Archiver.
func (a *S3) Archive(ctx context.Context, f File) (string, error) {
	if f.Checksum == "" {
		return "", errors.New("archive: checksum cannot be empty")
	}
	key := a.Key(f)
	log := logging.FromContext(ctx)

	exists, err := a.exists(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		log.Debug("source file already archived", "key", key)
		return key, nil
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(f.Data),
		ContentLength: aws.Int64(int64(len(f.Data))),
		ContentType:   aws.String(f.ContentType),
		Metadata: map[string]string{
			"checksum":      f.Checksum,
			"original-name": f.Name,
		},
	})
	if err != nil {
		log.Error("failed to archive source file", "key", key, "error", err)
		return "", fmt.Errorf("archive %s: %w", key, err)
	}

	log.Info("archived source file", "key", key, "size", len(f.Data))
	return key, nil
}

func (a *S3) exists(ctx context.Context, key string) (bool, error) {
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return false, nil
	}
	return false, fmt.Errorf("check %s: %w", key, err)
}
