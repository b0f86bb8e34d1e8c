// Package objectstore provides the object storage used by the bronze, silver
// and gold layers, backed by MinIO/S3 or the local filesystem.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	CodeEndpointUnreachable = "E_ENDPOINT_UNREACHABLE"
	CodeAuthInvalid         = "E_AUTH_INVALID"
	CodeBucketNotFound      = "E_BUCKET_NOT_FOUND"
	CodeObjectNotFound      = "E_OBJECT_NOT_FOUND"
	CodePermissionDenied    = "E_PERMISSION_DENIED"
	CodeTimeout             = "E_TIMEOUT"
	CodeWriteFailed         = "E_WRITE_FAILED"
	CodeReadFailed          = "E_READ_FAILED"
)

// Store is the minimal object storage surface the pipeline needs.
type Store interface {
	Put(ctx context.Context, bucket, key string, data []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// List returns every key under prefix, recursively, in lexical order.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Delete(ctx context.Context, bucket, key string) error
}

// Error wraps storage failures with a code and a retryability hint.
type Error struct {
	Code      string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func wrapError(code string, retryable bool, err error) *Error {
	return &Error{Code: code, Retryable: retryable, Err: err}
}

// IsNotFound reports whether err means the bucket or object does not exist.
func IsNotFound(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == CodeObjectNotFound || se.Code == CodeBucketNotFound
	}
	return false
}

// IsRetryable reports whether err carries a retryable hint.
func IsRetryable(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Retryable
}

// DeletePrefix removes every object under prefix and returns how many were removed.
func DeletePrefix(ctx context.Context, s Store, bucket, prefix string) (int, error) {
	keys, err := s.List(ctx, bucket, prefix)
	if err != nil {
		if IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	for i, key := range keys {
		if err := s.Delete(ctx, bucket, key); err != nil {
			return i, fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return len(keys), nil
}

// HasData reports whether any non-marker object exists under prefix.
func HasData(ctx context.Context, s Store, bucket, prefix string) (bool, error) {
	keys, err := s.List(ctx, bucket, prefix)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	for _, k := range keys {
		if !strings.HasSuffix(k, "/") && !strings.HasSuffix(k, "_SUCCESS") {
			return true, nil
		}
	}
	return false, nil
}

// JoinKey joins path segments with single slashes.
func JoinKey(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return strings.Join(cleaned, "/")
}
