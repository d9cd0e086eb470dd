// Package backfill implements the Archive Backfiller (spec §4.2): paged,
// transactional ingestion of archived block envelopes from an object store.
package backfill

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStore lists and fetches archived block envelopes. The only
// implementation is s3Store, but the interface keeps the Backfiller
// testable without a real bucket.
type ObjectStore interface {
	// List returns up to maxKeys object keys under prefix, in lexicographic
	// order, starting strictly after startAfter.
	List(ctx context.Context, prefix string, maxKeys int, startAfter string) ([]string, error)
	// Get fetches the raw object body for key.
	Get(ctx context.Context, key string) ([]byte, error)
}

// s3Store is the production ObjectStore, backed by AWS S3 (or an
// S3-compatible archive bucket).
type s3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds an ObjectStore over bucket using client.
func NewS3Store(client *s3.Client, bucket string) ObjectStore {
	return &s3Store{client: client, bucket: bucket}
}

func (s *s3Store) List(ctx context.Context, prefix string, maxKeys int, startAfter string) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(int32(maxKeys)),
	}
	if startAfter != "" {
		input.StartAfter = aws.String(startAfter)
	}
	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("listing objects under %s: %w", prefix, err)
	}
	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		keys = append(keys, aws.ToString(obj.Key))
	}
	return keys, nil
}

func (s *s3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting object %s: %w", key, err)
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", key, err)
	}
	return body, nil
}
