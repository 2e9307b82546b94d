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

package broker

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"go.uber.org/zap"

	"github.com/argoplatform/argonaut/internal/config"
)

func startTestBroker(t *testing.T) (*natsserver.Server, *Broker) {
	t.Helper()

	dir, err := os.MkdirTemp("", "argonaut-broker-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	opts := &natsserver.Options{Port: -1, JetStream: true, StoreDir: dir}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("embedded nats server never became ready")
	}
	t.Cleanup(srv.Shutdown)

	cfg := config.BrokerConfig{
		URL:          srv.ClientURL(),
		StreamName:   "INGEST_JOBS_TEST",
		ConsumerName: "test-workers",
	}
	b, err := Connect(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(b.Close)

	return srv, b
}

func TestDispatchJobDeliveredToSubscriber(t *testing.T) {
	_, b := startTestBroker(t)

	jobID := uuid.New()
	received := make(chan JobMessage, 1)

	sub, err := b.Subscribe("worker-1", func(ctx context.Context, msg JobMessage) error {
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := b.DispatchJob(context.Background(), JobMessage{JobID: jobID, ObjectStoreKey: "raw-uploads/x.bin"}); err != nil {
		t.Fatalf("DispatchJob: %v", err)
	}

	select {
	case msg := <-received:
		if msg.JobID != jobID {
			t.Errorf("job id = %s, want %s", msg.JobID, jobID)
		}
		if msg.ObjectStoreKey != "raw-uploads/x.bin" {
			t.Errorf("object store key = %q", msg.ObjectStoreKey)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched job")
	}
}

func TestSubscribeRedeliversOnHandlerError(t *testing.T) {
	_, b := startTestBroker(t)

	jobID := uuid.New()
	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})

	sub, err := b.Subscribe("worker-retry", func(ctx context.Context, msg JobMessage) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 2 {
			return context.DeadlineExceeded
		}
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := b.DispatchJob(context.Background(), JobMessage{JobID: jobID}); err != nil {
		t.Fatalf("DispatchJob: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never succeeded after redelivery")
	}
}

func TestPublishIndexEventDeliveredToSubscriber(t *testing.T) {
	_, b := startTestBroker(t)

	datasetID := uuid.New()
	received := make(chan IndexMessage, 1)

	sub, err := b.SubscribeIndex("indexer-1", func(ctx context.Context, msg IndexMessage) error {
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("SubscribeIndex: %v", err)
	}
	defer sub.Unsubscribe()

	if err := b.PublishIndexEvent(context.Background(), IndexMessage{DatasetID: datasetID}); err != nil {
		t.Fatalf("PublishIndexEvent: %v", err)
	}

	select {
	case msg := <-received:
		if msg.DatasetID != datasetID {
			t.Errorf("dataset id = %s, want %s", msg.DatasetID, datasetID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for index event")
	}
}
