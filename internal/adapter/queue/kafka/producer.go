// Package kafka carries the normalized job stream between the scheduler
// and the persistence worker. The producer side is the scheduler's job
// sink; the consumer side feeds the repository.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/jobharvest/internal/adapter/observability"
	"github.com/fairyhunter13/jobharvest/internal/domain"
)

// TopicJobs carries normalized job records, keyed by job identity so
// revisions of the same job stay ordered within a partition.
const TopicJobs = "jobs.normalized"

// Producer publishes normalized jobs and implements domain.JobSink.
type Producer struct {
	client *kgo.Client
	log    *slog.Logger
}

// NewProducer connects to the brokers and bootstraps the jobs topic.
func NewProducer(brokers []string, log *slog.Logger) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	ctx := context.Background()
	if err := createTopicIfNotExists(ctx, client, TopicJobs, 3, 1); err != nil {
		// a racing worker may have created it first
		log.Warn("topic bootstrap failed", slog.String("topic", TopicJobs), slog.Any("error", err))
	}
	return &Producer{client: client, log: log}, nil
}

// Upsert publishes one normalized job. Delivery is awaited so the
// scheduler's late-failure logging sees real broker errors.
func (p *Producer) Upsert(ctx domain.Context, j domain.Job) error {
	b, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("op=kafka.Upsert: marshal: %w", err)
	}
	record := &kgo.Record{
		Topic: TopicJobs,
		Key:   []byte(j.ID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "source", Value: []byte(j.Source)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		observability.SinkUpsertsTotal.WithLabelValues("kafka", "error").Inc()
		return fmt.Errorf("op=kafka.Upsert: produce: %w", err)
	}
	observability.SinkUpsertsTotal.WithLabelValues("kafka", "ok").Inc()
	p.log.Debug("job published",
		slog.String("job_id", j.ID),
		slog.String("source", j.Source))
	return nil
}

// Ping checks broker reachability; used by the readiness probe.
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes and closes the client.
func (p *Producer) Close() {
	p.client.Close()
}

var _ domain.JobSink = (*Producer)(nil)
