package appkafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"example.com/blogfeed/internal/models"
)

var (
	_ KafkaWriter = (*RealKafkaWriter)(nil)
	_ KafkaWriter = (*MockKafka)(nil)
	_ KafkaReader = (*MockKafka)(nil)
	_ KafkaWriter = (*MockKafkaFail)(nil)
)

func TestPostEventPublisher_WritesEvent(t *testing.T) {
	mk := &MockKafka{}
	pub := NewPostEventPublisher(mk)

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	event := models.PostEvent{
		Action: models.PostDeleted,
		Post: models.Post{
			ID:        "p1",
			Title:     "Bye",
			ImageURL:  "images/42cat.png",
			CreatorID: "u1",
			Creator:   &models.User{ID: "u1", Email: "almaz@example.com"},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if err := pub.NotifyPost(context.Background(), event); err != nil {
		t.Fatalf("NotifyPost: %v", err)
	}

	written := mk.Written()
	if len(written) != 1 {
		t.Fatalf("expected 1 message, got %d", len(written))
	}
	if string(written[0].Key) != "post_delete" {
		t.Fatalf("unexpected key %q", written[0].Key)
	}

	msg, err := mk.ReadMessage(context.Background())
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	got, err := DecodePostEvent(msg.Value)
	if err != nil {
		t.Fatalf("DecodePostEvent: %v", err)
	}
	if got.Action != models.PostDeleted || got.Post.ImageURL != "images/42cat.png" || got.Post.CreatorID != "u1" {
		t.Fatalf("unexpected event: %+v", got)
	}
	if got.Post.Creator != nil {
		t.Fatalf("creator must not be carried in the event")
	}
}

func TestPostEventPublisher_WriteFailure(t *testing.T) {
	pub := NewPostEventPublisher(&MockKafkaFail{})
	if err := pub.NotifyPost(context.Background(), models.PostEvent{Action: models.PostCreated}); err == nil {
		t.Fatalf("expected write error")
	}
}

func TestDecodePostEvent_Rejects(t *testing.T) {
	if _, err := DecodePostEvent([]byte("{invalid")); err == nil {
		t.Fatalf("expected JSON error")
	}
	_, err := DecodePostEvent([]byte(`{"action":"archive","post":{}}`))
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}
