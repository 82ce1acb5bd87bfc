package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewEvent(t *testing.T) {
	event := NewEvent(EventSessionCompleted, SessionCompletedEvent{SessionID: 7, UserID: "user-1", Score: 80})

	if event.ID == "" {
		t.Error("expected generated id")
	}
	if event.Type != EventSessionCompleted {
		t.Errorf("expected type %s, got %s", EventSessionCompleted, event.Type)
	}
	if event.Source != EventSource || event.Version != EventVersion {
		t.Errorf("unexpected envelope %+v", event)
	}
	if event.Timestamp.IsZero() {
		t.Error("expected timestamp set")
	}
}

func TestWatermillPublisherRoundTrip(t *testing.T) {
	logger := testLogger()
	channel := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(logger))
	publisher := &watermillPublisher{publisher: channel, logger: logger}
	defer publisher.Close()

	ctx := context.Background()
	messages, err := channel.Subscribe(ctx, TopicSessions)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	event := NewEvent(EventSessionInvalidated, SessionInvalidatedEvent{SessionID: 3, Reason: "risk threshold exceeded"})
	if err := publisher.Publish(ctx, TopicSessions, event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-messages:
		msg.Ack()
		if msg.UUID != event.ID {
			t.Errorf("expected message uuid %s, got %s", event.ID, msg.UUID)
		}
		if msg.Metadata.Get("event_type") != EventSessionInvalidated {
			t.Errorf("unexpected metadata %v", msg.Metadata)
		}

		var decoded Event
		if err := json.Unmarshal(msg.Payload, &decoded); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if decoded.Type != EventSessionInvalidated || decoded.Source != EventSource {
			t.Errorf("unexpected payload %+v", decoded)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestMockEventPublisher(t *testing.T) {
	mock := NewMockEventPublisher(testLogger())
	ctx := context.Background()

	if err := mock.Publish(ctx, TopicItems, NewEvent(EventItemsGenerated, ItemsGeneratedEvent{BatchID: 1, Topic: "algebra", ItemCount: 5})); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := mock.Publish(ctx, TopicSessions, NewEvent(EventSessionCompleted, SessionCompletedEvent{SessionID: 1})); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	published := mock.GetPublishedEvents()
	if len(published) != 2 {
		t.Fatalf("expected 2 events, got %d", len(published))
	}
	if published[0].Type != EventItemsGenerated {
		t.Errorf("expected first event items.generated, got %s", published[0].Type)
	}

	mock.ClearEvents()
	if len(mock.GetPublishedEvents()) != 0 {
		t.Error("expected cleared events")
	}
}
