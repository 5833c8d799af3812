// objstore/s3.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/mmp/avmrms/errs"
)

// S3Backend fetches MRMS objects from NOAA's public "noaa-mrms-pds"
// bucket (or any S3-compatible bucket configured via Bucket/Prefix).
// Credentials are resolved through the standard AWS chain; the bucket
// itself is public-read, so an anonymous caller succeeds without any
// credentials configured.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Backend resolves credentials through the standard AWS chain,
// preferring a static access key/secret pair when both env vars are set
// (via credentials.NewStaticCredentialsProvider). If neither that nor the
// default chain yields usable credentials (the common case for the
// public noaa-mrms-pds bucket), requests are sent unsigned.
func NewS3Backend(ctx context.Context, bucket, prefix string) (*S3Backend, error) {
	opts := []func(*config.LoadOptions) error{}
	if id, secret := os.Getenv("RUNTIME_MRMS_AWS_ACCESS_KEY_ID"), os.Getenv("RUNTIME_MRMS_AWS_SECRET_ACCESS_KEY"); id != "" && secret != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(id, secret, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if !hasCredentials(ctx, cfg) {
		cfg.Credentials = aws.AnonymousCredentials{}
	}
	return &S3Backend{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func hasCredentials(ctx context.Context, cfg aws.Config) bool {
	if cfg.Credentials == nil {
		return false
	}
	_, err := cfg.Credentials.Retrieve(ctx)
	return err == nil
}

func (s *S3Backend) Fetch(ctx context.Context, key string) ([]byte, error) {
	fullKey := key
	if s.prefix != "" {
		fullKey = s.prefix + "/" + key
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return nil, classifyS3Error(key, err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, out.Body); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", key, errs.ErrTransient, err)
	}
	return buf.Bytes(), nil
}

// ListKeys enumerates object keys under prefix, most-recent-first is not
// guaranteed by S3 (lexicographic order), so callers that need recency
// (the bootstrap window) sort the result themselves.
func (s *S3Backend) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := prefix
	if s.prefix != "" {
		fullPrefix = s.prefix + "/" + prefix
	}

	var keys []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(fullPrefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %v", prefix, errs.ErrTransient, err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	return keys, nil
}

func classifyS3Error(key string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%s: %w", key, errs.ErrNotYetPublished)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%s: %w: %v", key, errs.ErrPermanent, err)
		}
	}
	return fmt.Errorf("%s: %w: %v", key, errs.ErrTransient, err)
}
