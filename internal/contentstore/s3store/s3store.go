// Package s3store implements the content store on Amazon S3.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"medley/internal/contentstore"
	"medley/internal/jobs"
)

// Client is the S3 surface the store depends on.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Store adapts an S3 client to the content store interface.
type Store struct {
	client Client
}

// New wraps an S3 client.
func New(client Client) *Store {
	return &Store{client: client}
}

func (s *Store) Get(ctx context.Context, loc contentstore.Locator) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, jobs.Wrap(jobs.ErrNotFound, "", "get object", loc.String(), err)
		}
		return nil, jobs.Wrap(jobs.ErrObjectStore, "", "get object", loc.String(), err)
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, jobs.Wrap(jobs.ErrObjectStore, "", "read object body", loc.String(), err)
	}
	return body, nil
}

func (s *Store) Put(ctx context.Context, loc contentstore.Locator, body []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
		Body:   bytes.NewReader(body),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return jobs.Wrap(jobs.ErrObjectStore, "", "put object", loc.String(), err)
	}
	return nil
}

func (s *Store) Copy(ctx context.Context, src, dst contentstore.Locator) error {
	source := url.PathEscape(src.Bucket + "/" + src.Key)
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dst.Bucket),
		Key:        aws.String(dst.Key),
		CopySource: aws.String(source),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return jobs.Wrap(jobs.ErrNotFound, "", "copy object", src.String(), err)
		}
		return jobs.Wrap(jobs.ErrObjectStore, "", "copy object", src.String(), err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix contentstore.Locator) ([]contentstore.Locator, error) {
	var found []contentstore.Locator
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(prefix.Bucket),
		Prefix: aws.String(prefix.Key),
	}
	for {
		out, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, jobs.Wrap(jobs.ErrObjectStore, "", "list objects", prefix.String(), err)
		}
		for _, object := range out.Contents {
			if object.Key == nil {
				continue
			}
			found = append(found, contentstore.Locator{
				Scheme: contentstore.SchemeS3,
				Bucket: prefix.Bucket,
				Key:    *object.Key,
			})
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		input.ContinuationToken = out.NextContinuationToken
	}
	return found, nil
}

func isNoSuchKey(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}
