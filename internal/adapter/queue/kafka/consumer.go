package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/jobharvest/internal/adapter/observability"
	"github.com/fairyhunter13/jobharvest/internal/domain"
)

// Consumer reads the normalized job stream and upserts each record into
// the repository. Offsets are committed only after a batch persists, so a
// crash replays rather than loses records; the upsert is idempotent on
// job id, making replays harmless.
type Consumer struct {
	client *kgo.Client
	repo   domain.JobRepository
	log    *slog.Logger
}

// NewConsumer joins the worker consumer group on the jobs topic.
func NewConsumer(brokers []string, group string, repo domain.JobRepository, log *slog.Logger) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	if group == "" {
		group = "jobharvest-workers"
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(TopicJobs),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	if err := createTopicIfNotExists(context.Background(), client, TopicJobs, 3, 1); err != nil {
		log.Warn("topic bootstrap failed", slog.String("topic", TopicJobs), slog.Any("error", err))
	}
	return &Consumer{client: client, repo: repo, log: log}, nil
}

// Run polls until ctx is cancelled. A record that fails to decode is
// dropped with a log line; a repository failure stops the batch commit so
// the records are redelivered.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				c.log.Error("fetch error",
					slog.String("topic", fe.Topic),
					slog.Any("error", fe.Err))
			}
			continue
		}

		var failed bool
		fetches.EachRecord(func(rec *kgo.Record) {
			if failed {
				return
			}
			if err := c.process(ctx, rec); err != nil {
				failed = true
				c.log.Error("record processing failed",
					slog.String("key", string(rec.Key)),
					slog.Any("error", err))
			}
		})
		if failed {
			continue
		}
		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			c.log.Error("offset commit failed", slog.Any("error", err))
		}
	}
}

func (c *Consumer) process(ctx context.Context, rec *kgo.Record) error {
	var j domain.Job
	if err := json.Unmarshal(rec.Value, &j); err != nil {
		// a poison record is logged and skipped, not retried forever
		c.log.Error("undecodable record dropped",
			slog.String("key", string(rec.Key)),
			slog.Any("error", err))
		observability.SinkUpsertsTotal.WithLabelValues("postgres", "poison").Inc()
		return nil
	}
	if err := j.Validate(); err != nil {
		c.log.Warn("invalid record dropped", slog.String("job_id", j.ID))
		observability.RecordsRejectedTotal.WithLabelValues(j.Source).Inc()
		return nil
	}
	if err := c.repo.Upsert(ctx, j); err != nil {
		observability.SinkUpsertsTotal.WithLabelValues("postgres", "error").Inc()
		return fmt.Errorf("op=kafka.process: %w", err)
	}
	observability.SinkUpsertsTotal.WithLabelValues("postgres", "ok").Inc()
	return nil
}

// Ping checks broker reachability; used by the readiness probe.
func (c *Consumer) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

// Close leaves the group and closes the client.
func (c *Consumer) Close() {
	c.client.Close()
}
