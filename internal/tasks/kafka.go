package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"sentinel-ledger/internal/observability"
)

// KafkaQueue is a durable task queue on a Kafka topic. Records are keyed
// by token so tasks for the same token land on the same partition.
// Offsets are committed only after every record of a poll was run.
type KafkaQueue struct {
	client  *kgo.Client
	topic   string
	runner  *Runner
	workers int
	now     func() time.Time
	logger  zerolog.Logger
}

// KafkaQueueOptions contains configuration for creating a KafkaQueue.
type KafkaQueueOptions struct {
	Brokers  []string
	Topic    string
	GroupID  string
	ClientID string
	Runner   *Runner // nil for a produce-only queue
	Workers  int     // concurrent tasks per poll, default 4
	Now      func() time.Time
	Logger   zerolog.Logger
}

// NewKafkaQueue creates the franz-go client. With a Runner the client also
// joins the consumer group.
func NewKafkaQueue(opts KafkaQueueOptions) (*KafkaQueue, error) {
	if len(opts.Brokers) == 0 {
		return nil, fmt.Errorf("kafka queue: no brokers")
	}
	if opts.Topic == "" {
		return nil, fmt.Errorf("kafka queue: no topic")
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ClientID == "" {
		opts.ClientID = "sentinel"
	}

	kopts := []kgo.Opt{
		kgo.SeedBrokers(opts.Brokers...),
		kgo.ClientID(opts.ClientID),
		kgo.DefaultProduceTopic(opts.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	if opts.Runner != nil {
		if opts.GroupID == "" {
			return nil, fmt.Errorf("kafka queue: consumer needs a group id")
		}
		kopts = append(kopts,
			kgo.ConsumerGroup(opts.GroupID),
			kgo.ConsumeTopics(opts.Topic),
			kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
			kgo.DisableAutoCommit(),
			kgo.BlockRebalanceOnPoll(),
		)
	}

	client, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	opts.Logger.Info().
		Strs("brokers", opts.Brokers).
		Str("topic", opts.Topic).
		Str("group_id", opts.GroupID).
		Msg("kafka task queue created")

	return &KafkaQueue{
		client:  client,
		topic:   opts.Topic,
		runner:  opts.Runner,
		workers: opts.Workers,
		now:     opts.Now,
		logger:  opts.Logger,
	}, nil
}

// Enqueue publishes an analysis task and waits for the broker ack.
func (q *KafkaQueue) Enqueue(ctx context.Context, address, chain string) error {
	rec, err := encodeTask(q.topic, NewTask(address, chain, q.now()))
	if err != nil {
		return err
	}
	if err := q.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce task for %s: %w", address, err)
	}
	observability.RecordTaskEnqueued("kafka")
	return nil
}

// Run consumes tasks until ctx is cancelled.
func (q *KafkaQueue) Run(ctx context.Context) error {
	if q.runner == nil {
		return fmt.Errorf("kafka queue: no runner configured")
	}
	q.logger.Info().Str("topic", q.topic).Int("workers", q.workers).Msg("kafka task consumer started")

	for {
		fetches := q.client.PollFetches(ctx)
		if ctx.Err() != nil || fetches.IsClientClosed() {
			q.client.AllowRebalance()
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			q.logger.Error().Err(err).Str("topic", topic).Int32("partition", partition).Msg("fetch error")
		})

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(q.workers)
		fetches.EachRecord(func(rec *kgo.Record) {
			t, err := decodeTask(rec)
			if err != nil {
				q.logger.Warn().Err(err).Int64("offset", rec.Offset).Msg("dropping undecodable task")
				return
			}
			g.Go(func() error {
				q.runner.Run(gctx, t)
				return nil
			})
		})
		_ = g.Wait()

		if ctx.Err() == nil {
			if err := q.client.CommitUncommittedOffsets(ctx); err != nil {
				q.logger.Error().Err(err).Msg("commit offsets failed")
			}
		}
		q.client.AllowRebalance()
	}
}

// Close flushes pending records and leaves the group.
func (q *KafkaQueue) Close() {
	q.client.Close()
	q.logger.Info().Str("topic", q.topic).Msg("kafka task queue closed")
}

func encodeTask(topic string, t Task) (*kgo.Record, error) {
	value, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(t.Key()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "task_id", Value: []byte(t.ID)},
		},
	}, nil
}

func decodeTask(rec *kgo.Record) (Task, error) {
	var t Task
	if err := json.Unmarshal(rec.Value, &t); err != nil {
		return t, fmt.Errorf("unmarshal task: %w", err)
	}
	if t.Address == "" || t.Chain == "" {
		return t, fmt.Errorf("task %q missing address or chain", t.ID)
	}
	return t, nil
}
