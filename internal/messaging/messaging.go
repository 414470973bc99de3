package messaging

import (
	"context"
	"oracle-broker/pkg/models"
	"time"
)

const (
	SubmissionQueue = "submission_events"
	ResolutionQueue = "resolution_events"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type Publisher interface {
	PublishSubmissionEvent(ctx context.Context, payload models.SubmissionEvent) error

	PublishResolutionEvent(ctx context.Context, payload models.ResolutionEvent) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
