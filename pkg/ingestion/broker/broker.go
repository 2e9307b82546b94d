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

// Package broker dispatches ingestion jobs over a NATS JetStream
// stream and signals successful indexing back to interested
// subscribers. Publish failures are logged, never escalated to the
// caller's own success/failure, which is preferable to failing an
// otherwise-successful write. A lost dispatch message leaves its job
// pending: the stale-job sweeper reclaims only jobs stuck in running,
// and an admin retry accepts only failed jobs, so neither re-dispatches
// it.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/argoplatform/argonaut/internal/config"
)

// JobMessage is the payload published to the ingest-jobs stream when
// an HTTP upload creates a new pending job.
type JobMessage struct {
	JobID          uuid.UUID `json:"job_id"`
	ObjectStoreKey string    `json:"object_store_key"`
}

// IndexMessage is the fire-and-forget event published on terminal
// job success, telling the indexer which dataset to process.
type IndexMessage struct {
	DatasetID uuid.UUID `json:"dataset_id"`
}

// Broker wraps one JetStream context bound to the configured stream.
type Broker struct {
	conn         *nats.Conn
	js           nats.JetStreamContext
	streamName   string
	subject      string
	indexSubject string
	log          *zap.Logger
}

// Connect dials cfg.URL, ensures the stream exists, and returns a
// ready-to-use Broker.
func Connect(cfg config.BrokerConfig, log *zap.Logger) (*Broker, error) {
	nc, err := nats.Connect(cfg.URL, nats.MaxReconnects(-1), nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	subject := cfg.StreamName + ".jobs"
	indexSubject := cfg.StreamName + ".index"

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{subject, indexSubject},
		Storage:  nats.FileStorage,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		nc.Close()
		return nil, fmt.Errorf("create stream %s: %w", cfg.StreamName, err)
	}

	return &Broker{conn: nc, js: js, streamName: cfg.StreamName, subject: subject, indexSubject: indexSubject, log: log}, nil
}

// Close closes the underlying NATS connection without draining it.
func (b *Broker) Close() {
	if b == nil || b.conn == nil {
		return
	}
	b.conn.Close()
}

// DispatchJob publishes a JobMessage for a newly created pending job.
func (b *Broker) DispatchJob(ctx context.Context, msg JobMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal job message: %w", err)
	}
	if _, err := b.js.Publish(b.subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish job %s: %w", msg.JobID, err)
	}
	return nil
}

// PublishIndexEvent fire-and-forget publishes the index(dataset_id)
// event on terminal job success. A publish failure here is logged by
// the caller, never treated as a job failure.
func (b *Broker) PublishIndexEvent(ctx context.Context, msg IndexMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal index message: %w", err)
	}
	if _, err := b.js.Publish(b.indexSubject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish index event for %s: %w", msg.DatasetID, err)
	}
	return nil
}

// Subscribe registers a durable push consumer named consumerName (an
// asynchronous callback subscription) that invokes handler for every
// JobMessage received, acking on handler
// success and leaving the message unacked (for JetStream's own
// redelivery) on handler error.
func (b *Broker) Subscribe(consumerName string, handler func(context.Context, JobMessage) error) (*nats.Subscription, error) {
	return b.js.Subscribe(b.subject, func(msg *nats.Msg) {
		var jm JobMessage
		if err := json.Unmarshal(msg.Data, &jm); err != nil {
			b.log.Warn("dropping malformed job message", zap.Error(err))
			_ = msg.Ack()
			return
		}

		if err := handler(context.Background(), jm); err != nil {
			b.log.Error("job handler failed, leaving message for redelivery", zap.String("job_id", jm.JobID.String()), zap.Error(err))
			return
		}
		_ = msg.Ack()
	}, nats.Durable(consumerName), nats.ManualAck())
}

// SubscribeIndex registers a durable push consumer for IndexMessage
// events, used by the indexer worker.
func (b *Broker) SubscribeIndex(consumerName string, handler func(context.Context, IndexMessage) error) (*nats.Subscription, error) {
	return b.js.Subscribe(b.indexSubject, func(msg *nats.Msg) {
		var im IndexMessage
		if err := json.Unmarshal(msg.Data, &im); err != nil {
			b.log.Warn("dropping malformed index message", zap.Error(err))
			_ = msg.Ack()
			return
		}

		if err := handler(context.Background(), im); err != nil {
			b.log.Error("index handler failed, leaving message for redelivery", zap.String("dataset_id", im.DatasetID.String()), zap.Error(err))
			return
		}
		_ = msg.Ack()
	}, nats.Durable(consumerName), nats.ManualAck())
}
