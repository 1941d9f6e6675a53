package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type transitionRecord struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
	At       int64  `json:"at"`
}

// TransitionFeed publishes presence transitions to a Kafka topic for
// downstream notification services. Fire-and-forget from the caller's point
// of view; the coordinator logs and moves on if a publish fails.
type TransitionFeed struct {
	writer *kafka.Writer
}

func NewTransitionFeed(brokers []string, topic string) *TransitionFeed {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		WriteTimeout: 5 * time.Second,
	}
	return &TransitionFeed{writer: writer}
}

func (f *TransitionFeed) PublishTransition(ctx context.Context, userID string, online bool) error {
	payload, err := json.Marshal(transitionRecord{
		UserID:   userID,
		IsOnline: online,
		At:       time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("encode transition: %w", err)
	}

	// Keyed by user so all of one user's transitions land in one partition
	// and stay ordered.
	err = f.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(userID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("publish transition: %w", err)
	}
	return nil
}

func (f *TransitionFeed) Close() error {
	return f.writer.Close()
}
