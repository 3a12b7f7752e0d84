// Package queue is the durable, at-least-once channel carrying upload jobs
// from intake to the workers.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/nimbusdrive/file-service/internal/models"
)

var (
	// ErrUnavailable means the broker rejected or never acknowledged a
	// publish; intake treats this as fatal for the request.
	ErrUnavailable = errors.New("queue: broker unavailable")
	// ErrMalformedJob means a delivery carried a payload that does not
	// decode into an upload job. Such messages are terminated at fetch
	// time so they cannot wedge a consumer.
	ErrMalformedJob = errors.New("queue: malformed job payload")
)

// Publisher enqueues jobs. A job id is returned once the broker has durably
// acknowledged the message.
type Publisher interface {
	Publish(ctx context.Context, job models.UploadJob) (string, error)
}

// Delivery is one in-flight job handed to exactly one consumer at a time.
// The message is redelivered if the consumer neither acks nor terminates it
// within the visibility window.
type Delivery interface {
	Job() models.UploadJob

	// Attempts is the 1-based delivery count, including this delivery.
	Attempts() int

	// Ack removes the job permanently.
	Ack() error

	// Retry returns the job to the queue for redelivery after delay.
	Retry(delay time.Duration) error

	// Term removes the job without further redelivery (terminal failure).
	Term() error
}

// Consumer pulls deliveries off the queue.
type Consumer interface {
	// Fetch blocks until a delivery arrives or ctx is done.
	Fetch(ctx context.Context) (Delivery, error)

	// MaxAttempts is the redelivery budget before a job is considered
	// exhausted.
	MaxAttempts() int
}
