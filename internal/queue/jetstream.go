package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nimbusdrive/file-service/internal/models"
)

const (
	// StreamName backs the upload queue; file storage so jobs survive a
	// broker restart.
	StreamName = "FILE_JOBS"
	// UploadSubject is the topic intake publishes to.
	UploadSubject = "file.upload"
	// ConsumerName is the durable consumer shared by all worker instances.
	ConsumerName = "upload_queue"
)

// Broker owns the long-lived NATS connection and JetStream context. It is
// constructed once at process startup and closed at shutdown.
type Broker struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *slog.Logger
}

func Connect(url string, logger *slog.Logger) (*Broker, error) {
	logger = logger.With(slog.String("component", "queue"))

	opts := []nats.Option{
		nats.Name("file-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	b := &Broker{nc: nc, js: js, logger: logger}
	if err := b.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return b, nil
}

// ensureStream creates the job stream if it does not exist (idempotent).
func (b *Broker) ensureStream() error {
	if _, err := b.js.StreamInfo(StreamName); err == nil {
		return nil
	}
	_, err := b.js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{UploadSubject},
		Storage:   nats.FileStorage,
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", StreamName, err)
	}
	b.logger.Info("created stream", slog.String("stream", StreamName))
	return nil
}

func (b *Broker) JetStream() nats.JetStreamContext { return b.js }

func (b *Broker) Close() {
	if b.nc != nil {
		b.nc.Drain()
	}
}

// Publish enqueues an upload job. The broker's publish ack is awaited, so a
// nil error means the job is durable and will be delivered at least once.
func (b *Broker) Publish(ctx context.Context, job models.UploadJob) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	// MsgId makes an intake-side publish retry safe to deduplicate.
	_, err = b.js.Publish(UploadSubject, data, nats.MsgId(job.JobID), nats.Context(ctx))
	if err != nil {
		b.logger.Error("failed to publish upload job",
			slog.String("job_id", job.JobID), slog.Any("error", err))
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	b.logger.Info("upload job queued",
		slog.String("job_id", job.JobID),
		slog.String("file_id", job.File.ID))
	return job.JobID, nil
}

// JetStreamConsumer is a durable pull consumer over the job stream. AckWait
// is the visibility window: a delivery neither acked nor terminated within it
// is redelivered, which is also what rescues jobs from crashed workers.
type JetStreamConsumer struct {
	sub        *nats.Subscription
	maxDeliver int
	logger     *slog.Logger
}

func (b *Broker) Consumer(ackWait time.Duration, maxDeliver int) (*JetStreamConsumer, error) {
	sub, err := b.js.PullSubscribe(UploadSubject, ConsumerName,
		nats.AckExplicit(),
		nats.AckWait(ackWait),
		nats.MaxDeliver(maxDeliver),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", ConsumerName, err)
	}
	return &JetStreamConsumer{
		sub:        sub,
		maxDeliver: maxDeliver,
		logger:     b.logger,
	}, nil
}

func (c *JetStreamConsumer) MaxAttempts() int { return c.maxDeliver }

func (c *JetStreamConsumer) Fetch(ctx context.Context) (Delivery, error) {
	msgs, err := c.sub.Fetch(1, nats.Context(ctx))
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nats.ErrTimeout
	}
	msg := msgs[0]

	var job models.UploadJob
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		// A payload that never decodes would redeliver forever; drop it.
		c.logger.Error("terminating malformed job payload", slog.Any("error", err))
		if termErr := msg.Term(); termErr != nil {
			c.logger.Warn("failed to terminate malformed job", slog.Any("error", termErr))
		}
		return nil, ErrMalformedJob
	}

	return &jsDelivery{msg: msg, job: job}, nil
}

type jsDelivery struct {
	msg *nats.Msg
	job models.UploadJob
}

func (d *jsDelivery) Job() models.UploadJob { return d.job }

func (d *jsDelivery) Attempts() int {
	meta, err := d.msg.Metadata()
	if err != nil {
		return 1
	}
	return int(meta.NumDelivered)
}

func (d *jsDelivery) Ack() error { return d.msg.Ack() }

func (d *jsDelivery) Retry(delay time.Duration) error {
	return d.msg.NakWithDelay(delay)
}

func (d *jsDelivery) Term() error { return d.msg.Term() }

var _ Publisher = (*Broker)(nil)
var _ Consumer = (*JetStreamConsumer)(nil)
