package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
)

var (
	ErrBucketRequired = errors.New("bucket is required")
	ErrClientRequired = errors.New("storage client is required")
)

// Outputs are keyed by job id and never rewritten.
const cacheControl = "public, max-age=31536000, immutable"

type Uploader struct {
	Client                *storage.Client
	Bucket                string
	MakePublic            bool
	AllowPublicACLFailure bool
}

func NewUploader(client *storage.Client, bucket string, makePublic bool, allowPublicACLFailure bool) *Uploader {
	return &Uploader{
		Client:                client,
		Bucket:                bucket,
		MakePublic:            makePublic,
		AllowPublicACLFailure: allowPublicACLFailure,
	}
}

// Upload writes the object, optionally grants public read, and returns its
// public URL.
func (u *Uploader) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	if u.Client == nil {
		return "", ErrClientRequired
	}
	if u.Bucket == "" {
		return "", ErrBucketRequired
	}
	if objectName == "" {
		return "", errors.New("object name is required")
	}

	obj := u.Client.Bucket(u.Bucket).Object(objectName)
	writer := obj.NewWriter(ctx)
	writer.CacheControl = cacheControl
	if contentType != "" {
		writer.ContentType = contentType
	}

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("write gs://%s/%s: %w", u.Bucket, objectName, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close gs://%s/%s: %w", u.Bucket, objectName, err)
	}

	if u.MakePublic {
		if err := obj.ACL().Set(ctx, storage.AllUsers, storage.RoleReader); err != nil {
			// Buckets with uniform access reject object ACLs; public access
			// is then governed by bucket IAM.
			if !(u.AllowPublicACLFailure && isUniformAccessError(err)) {
				return "", err
			}
		}
	}

	return publicURL(u.Bucket, objectName), nil
}

func isUniformAccessError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "uniform bucket-level access")
}

func publicURL(bucket, objectName string) string {
	parts := strings.Split(objectName, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, strings.Join(parts, "/"))
}
