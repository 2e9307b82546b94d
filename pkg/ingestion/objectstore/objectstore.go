/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package objectstore stages uploaded files in an S3-compatible bucket
// ahead of parsing. The raw object always outlives the ingestion job
// so a retry can re-run from the original bytes without re-uploading.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/argoplatform/argonaut/internal/config"
)

// Store stages, fetches and presigns objects in the raw-uploads
// bucket. All three operations run behind a circuit breaker so a
// failing endpoint surfaces as a fast transient error instead of
// hanging every in-flight job.
type Store struct {
	client   *s3.Client
	presign  *s3.PresignClient
	bucket   string
	breaker  *gobreaker.CircuitBreaker
	log      *zap.Logger
}

// New builds a Store from cfg. It dials no network connection itself;
// the AWS SDK resolves credentials and endpoint lazily on first call.
func New(ctx context.Context, cfg config.ObjectStoreConfig, log *zap.Logger) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: cfg.AccessKeyID, SecretAccessKey: cfg.SecretAccessKey}, nil
		})
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "objectstore",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		breaker: breaker,
		log:     log,
	}, nil
}

// Key returns the canonical raw-uploads key for a file, per the
// "never deleted by the core" staging contract.
func Key(datasetID, originalFilename string) string {
	return fmt.Sprintf("raw-uploads/%s/%s", datasetID, originalFilename)
}

// Stage uploads data under key through the circuit breaker. Staging
// must complete before parsing begins; a Stage failure is returned to
// the caller and is not retried here.
func (s *Store) Stage(ctx context.Context, key string, data []byte) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(data),
		})
		return nil, err
	})
	if err != nil {
		s.log.Error("stage object failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("stage %s: %w", key, err)
	}
	return nil
}

// Fetch downloads the object at key, for the orchestrator to hand to
// the parser and for retries to re-run from the original bytes.
func (s *Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, err
		}
		defer out.Body.Close()
		return io.ReadAll(out.Body)
	})
	if err != nil {
		s.log.Error("fetch object failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	return result.([]byte), nil
}

// Presign returns a temporary download URL for key valid for ttl.
func (s *Store) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(ttl))
	})
	if err != nil {
		s.log.Error("presign object failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return result.(*s3.PresignedHTTPRequest).URL, nil
}
