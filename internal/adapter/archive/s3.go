package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// putter is the subset of the S3 API used by the archive.
type putter interface {
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// S3 stores a copy of every raw CAP document under bucket/prefix, keyed by
// the document's path relative to the delivery root.
type S3 struct {
	client putter
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3 creates an archive using the default AWS credential chain.
func NewS3(bucket, prefix, region string, logger *slog.Logger) (*S3, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return newS3(s3.New(sess), bucket, prefix, logger), nil
}

func newS3(client putter, bucket, prefix string, logger *slog.Logger) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// Archive uploads data under the key derived from docPath.
func (a *S3) Archive(ctx context.Context, docPath string, data []byte) error {
	key := a.Key(docPath)
	_, err := a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/xml"),
	})
	if err != nil {
		return fmt.Errorf("archive %s to s3://%s/%s: %w", docPath, a.bucket, key, err)
	}
	a.logger.Debug("raw document archived", "path", docPath, "bucket", a.bucket, "key", key)
	return nil
}

// Key maps a local path to its object key: the prefix followed by the path
// below any "/amqp/" delivery directory, or the cleaned path otherwise.
func (a *S3) Key(docPath string) string {
	rel := path.Clean("/" + docPath)
	if i := strings.LastIndex(rel, "/amqp/"); i >= 0 {
		rel = rel[i+len("/amqp/"):]
	}
	return a.prefix + strings.TrimPrefix(rel, "/")
}
