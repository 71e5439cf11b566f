/*
Package filestore stores uploaded proof documents.

PURPOSE:
  Implements claim.FileStore twice: S3 for deployments and an in-process
  map for development and tests. Proofs are written under
  "claims/<claim id>/<uuid>-<filename>" by the workflow; this package
  does not choose paths.

S3:
  Region and credentials come from the default AWS chain. Endpoint is
  optional and points the client at LocalStack or another S3-compatible
  service (path-style addressing is forced in that case).

SEE ALSO:
  - claim/workflow.go: AttachProof
*/
package filestore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/rdc/incentive-engine/config"
)

// s3API is the subset of *s3.Client used here.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	PutObjectAcl(ctx context.Context, in *s3.PutObjectAclInput, optFns ...func(*s3.Options)) (*s3.PutObjectAclOutput, error)
}

type S3 struct {
	client   s3API
	bucket   string
	region   string
	endpoint string
}

// NewS3 loads the AWS configuration and builds a client for the bucket.
func NewS3(ctx context.Context, cfg config.StorageConfig) (*S3, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("filestore: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3(client, cfg.Bucket, cfg.Region, cfg.Endpoint), nil
}

func newS3(client s3API, bucket, region, endpoint string) *S3 {
	return &S3{
		client:   client,
		bucket:   bucket,
		region:   region,
		endpoint: strings.TrimRight(endpoint, "/"),
	}
}

func (s *S3) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(path),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("filestore: put %s: %w", path, err)
	}
	return s.objectURL(path), nil
}

func (s *S3) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("filestore: delete %s: %w", path, err)
	}
	return nil
}

// MakePublic grants anonymous read on the object.
func (s *S3) MakePublic(ctx context.Context, path string) error {
	_, err := s.client.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
		ACL:    types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return fmt.Errorf("filestore: make public %s: %w", path, err)
	}
	return nil
}

func (s *S3) objectURL(path string) string {
	key := escapeKey(path)
	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

func escapeKey(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
