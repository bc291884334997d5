package objectstore

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

var allowedExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"gif":  true,
	"webp": true,
}

type presignAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Presigner issues time limited URLs for a single bucket.
type Presigner struct {
	api       presignAPI
	bucket    string
	putExpiry time.Duration
	getExpiry time.Duration
}

func NewPresigner(client *s3.Client, bucket string, putExpiry, getExpiry time.Duration) *Presigner {
	return newPresigner(s3.NewPresignClient(client), bucket, putExpiry, getExpiry)
}

func newPresigner(api presignAPI, bucket string, putExpiry, getExpiry time.Duration) *Presigner {
	return &Presigner{api: api, bucket: bucket, putExpiry: putExpiry, getExpiry: getExpiry}
}

func (p *Presigner) PutExpiry() time.Duration { return p.putExpiry }

func (p *Presigner) GetExpiry() time.Duration { return p.getExpiry }

func (p *Presigner) PresignPut(ctx context.Context, key, contentType string, size int64) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	req, err := p.api.PresignPutObject(ctx, input, s3.WithPresignExpires(p.putExpiry))
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", key, err)
	}
	return req.URL, nil
}

func (p *Presigner) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := p.api.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.getExpiry))
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", key, err)
	}
	return req.URL, nil
}

// NewObjectKey builds "<prefix><uuid>.<ext>" for an upload of filename.
func NewObjectKey(prefix, filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedExtension, filename)
	}
	return prefix + uuid.NewString() + "." + ext, nil
}
