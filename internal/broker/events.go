package appkafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"example.com/blogfeed/internal/models"
	"github.com/segmentio/kafka-go"
)

var ErrUnknownAction = errors.New("unknown post event action")

// PostEventPublisher writes post events to Kafka, keyed by action.
type PostEventPublisher struct {
	writer KafkaWriter
}

func NewPostEventPublisher(w KafkaWriter) *PostEventPublisher {
	return &PostEventPublisher{writer: w}
}

func (p *PostEventPublisher) NotifyPost(ctx context.Context, event models.PostEvent) error {
	msg, err := EncodePostEvent(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write post event: %w", err)
	}
	return nil
}

// EncodePostEvent builds the Kafka message for event. The creator is not
// carried; consumers only get the creator id.
func EncodePostEvent(event models.PostEvent) (kafka.Message, error) {
	event.Post.Creator = nil
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal post event: %w", err)
	}
	return kafka.Message{
		Key:   []byte("post_" + string(event.Action)),
		Value: data,
	}, nil
}

// DecodePostEvent parses a message value written by EncodePostEvent.
func DecodePostEvent(data []byte) (models.PostEvent, error) {
	var ev models.PostEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, err
	}
	switch ev.Action {
	case models.PostCreated, models.PostUpdated, models.PostDeleted:
		return ev, nil
	}
	return ev, fmt.Errorf("%w: %q", ErrUnknownAction, ev.Action)
}
