package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"image-transform/internal/jobdb"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.Dial(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial pstest: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	if err != nil {
		t.Fatalf("pubsub client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

type fakeOutbox struct {
	mu        sync.Mutex
	pending   []jobdb.OutboxMessage
	claimErr  error
	published []string
	failed    map[string]string
}

func (f *fakeOutbox) Claim(_ context.Context, limit int) ([]jobdb.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	n := min(limit, len(f.pending))
	batch := f.pending[:n]
	f.pending = f.pending[n:]
	return batch, nil
}

func (f *fakeOutbox) MarkPublished(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, id)
	return nil
}

func (f *fakeOutbox) RecordError(id string, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed == nil {
		f.failed = map[string]string{}
	}
	f.failed[id] = errMsg
	return nil
}

func message(id, jobID string) jobdb.OutboxMessage {
	payload, _ := json.Marshal(jobdb.Notification{JobID: jobID})
	return jobdb.OutboxMessage{ID: id, JobID: jobID, Payload: payload}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnsureTopicAndSubscriptionIdempotent(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := EnsureTopicWithRetry(ctx, client, "jobs", 3, 10*time.Millisecond); err != nil {
			t.Fatalf("EnsureTopicWithRetry #%d: %v", i, err)
		}
		if err := EnsureSubscription(ctx, client, "jobs", "jobs-pull", ""); err != nil {
			t.Fatalf("EnsureSubscription #%d: %v", i, err)
		}
	}

	exists, err := client.Subscription("jobs-pull").Exists(ctx)
	if err != nil || !exists {
		t.Fatalf("subscription missing: exists=%v err=%v", exists, err)
	}
}

func TestDrainPublishesAndMarks(t *testing.T) {
	client, srv := newTestClient(t)
	ctx := context.Background()
	if err := EnsureTopic(ctx, client, "jobs"); err != nil {
		t.Fatalf("EnsureTopic: %v", err)
	}
	if err := EnsureSubscription(ctx, client, "jobs", "jobs-pull", ""); err != nil {
		t.Fatalf("EnsureSubscription: %v", err)
	}
	topic := client.Topic("jobs")
	defer topic.Stop()

	outbox := &fakeOutbox{pending: []jobdb.OutboxMessage{message("o1", "j1"), message("o2", "j2"), message("o3", "j3")}}
	p := NewPublisher(topic, outbox, quietLogger())

	n, err := p.Drain(ctx, 2)
	if err != nil || n != 2 {
		t.Fatalf("first drain: n=%d err=%v", n, err)
	}
	n, err = p.Drain(ctx, 2)
	if err != nil || n != 1 {
		t.Fatalf("second drain: n=%d err=%v", n, err)
	}
	if len(outbox.published) != 3 {
		t.Fatalf("expected 3 marked published, got %v", outbox.published)
	}

	msgs := srv.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages on the topic, got %d", len(msgs))
	}
	var note jobdb.Notification
	if err := json.Unmarshal(msgs[0].Data, &note); err != nil || note.JobID == "" {
		t.Fatalf("unexpected message body %s: %v", msgs[0].Data, err)
	}
	if msgs[0].Attributes["jobId"] != note.JobID {
		t.Fatalf("jobId attribute %q does not match body %q", msgs[0].Attributes["jobId"], note.JobID)
	}
}

func TestPublishRecordsError(t *testing.T) {
	client, _ := newTestClient(t)
	topic := client.Topic("missing")
	defer topic.Stop()

	outbox := &fakeOutbox{}
	p := NewPublisher(topic, outbox, quietLogger())
	if err := p.Publish(context.Background(), message("o1", "j1")); err == nil {
		t.Fatalf("expected publish to a missing topic to fail")
	}
	if _, ok := outbox.failed["o1"]; !ok {
		t.Fatalf("expected the failure to be recorded, got %v", outbox.failed)
	}
	if len(outbox.published) != 0 {
		t.Fatalf("failed message marked published")
	}
}

func TestDrainClaimError(t *testing.T) {
	client, _ := newTestClient(t)
	topic := client.Topic("jobs")
	defer topic.Stop()

	boom := errors.New("db down")
	p := NewPublisher(topic, &fakeOutbox{claimErr: boom}, quietLogger())
	if _, err := p.Drain(context.Background(), 10); !errors.Is(err, boom) {
		t.Fatalf("expected claim error, got %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	client, _ := newTestClient(t)
	topic := client.Topic("jobs")
	defer topic.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewPublisher(topic, &fakeOutbox{}, quietLogger()).Run(ctx, 10*time.Millisecond, 5)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
