// Package redisstream feeds change batches from a Redis stream consumer group.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/kailas-cloud/omniview/internal/db"
	"github.com/kailas-cloud/omniview/internal/domain/change"
	logpkg "github.com/kailas-cloud/omniview/internal/logger"
	"github.com/kailas-cloud/omniview/internal/usecase/maintainer"
)

// Source labels batches read from the stream.
const Source = "redis_stream"

// RecordField is the entry field holding one stream record as JSON.
const RecordField = "record"

// BatchProcessor applies a batch of change records to the aggregate.
type BatchProcessor interface {
	Process(ctx context.Context, batch change.Batch) (maintainer.Report, error)
}

// Config holds consumer group settings.
type Config struct {
	Stream   string
	Group    string
	Consumer string
	Count    int64         // entries per batch
	Block    time.Duration // XREADGROUP block time for new entries
	Backoff  time.Duration // pause after a failed batch
}

// Consumer reads stream entries as batches and acknowledges them only after
// the batch is applied.
type Consumer struct {
	client  rueidis.Client
	cfg     Config
	batches BatchProcessor
	logger  *zap.Logger
}

// NewConsumer creates a stream consumer.
func NewConsumer(client rueidis.Client, cfg Config, batches BatchProcessor, logger *zap.Logger) *Consumer {
	if cfg.Count <= 0 {
		cfg.Count = 50
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Consumer{client: client, cfg: cfg, batches: batches, logger: logger}
}

// EnsureGroup creates the stream and consumer group if missing.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	cmd := c.client.B().XgroupCreate().Key(c.cfg.Stream).Group(c.cfg.Group).Id("$").Mkstream().Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		if re, ok := rueidis.IsRedisErr(err); ok && strings.HasPrefix(re.Error(), "BUSYGROUP") {
			return nil
		}
		return &db.Error{Op: db.OpXGroup, Err: err}
	}
	return nil
}

// HealthCheck pings the stream server.
func (c *Consumer) HealthCheck(ctx context.Context) error {
	if err := c.client.Do(ctx, c.client.B().Ping().Build()).Error(); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Run consumes until ctx is cancelled. Entries left pending by an earlier
// run of this consumer are processed first.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}
	c.logger.Info("Stream consumer started",
		zap.String("stream", c.cfg.Stream),
		zap.String("group", c.cfg.Group),
		zap.String("consumer", c.cfg.Consumer),
	)

	pending := true
	for ctx.Err() == nil {
		id := ">"
		if pending {
			id = "0"
		}
		n, err := c.Poll(ctx, id)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			c.logger.Warn("Stream batch failed, will retry pending entries", zap.Error(err))
			pending = true
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.cfg.Backoff):
			}
		case pending && n == 0:
			pending = false
		}
	}
	return nil
}

// Poll reads one batch starting at id ("0" for own pending entries, ">" for
// new ones), processes it and acknowledges it. It returns the number of
// entries read.
func (c *Consumer) Poll(ctx context.Context, id string) (int, error) {
	entries, err := c.read(ctx, id)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	ids := make([]string, len(entries))
	records := make([]change.Record, 0, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		raw, ok := e.FieldValues[RecordField]
		if !ok {
			c.logger.Warn("Stream entry without record field, acknowledging", zap.String("entry_id", e.ID))
			continue
		}
		r, err := change.DecodeRecord([]byte(raw))
		if err != nil {
			c.logger.Warn("Undecodable stream entry, acknowledging", zap.String("entry_id", e.ID), zap.Error(err))
			continue
		}
		records = append(records, r)
	}

	if len(records) > 0 {
		batch := change.Batch{ID: ids[0], Source: Source, Records: records}
		ctx := logpkg.WithFields(ctx, c.logger,
			zap.String("stream", c.cfg.Stream),
			zap.String("consumer", c.cfg.Consumer),
		)
		if _, err := c.batches.Process(ctx, batch); err != nil {
			return len(entries), fmt.Errorf("process batch %s: %w", batch.ID, err)
		}
	}

	if err := c.ack(ctx, ids); err != nil {
		return len(entries), err
	}
	return len(entries), nil
}

func (c *Consumer) read(ctx context.Context, id string) ([]rueidis.XRangeEntry, error) {
	b := c.client.B().Xreadgroup().Group(c.cfg.Group, c.cfg.Consumer).Count(c.cfg.Count)
	var cmd rueidis.Completed
	if id == ">" {
		cmd = b.Block(c.cfg.Block.Milliseconds()).Streams().Key(c.cfg.Stream).Id(id).Build()
	} else {
		cmd = b.Streams().Key(c.cfg.Stream).Id(id).Build()
	}

	streams, err := c.client.Do(ctx, cmd).AsXRead()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &db.Error{Op: db.OpXReadGroup, Err: err}
	}
	return streams[c.cfg.Stream], nil
}

func (c *Consumer) ack(ctx context.Context, ids []string) error {
	cmd := c.client.B().Xack().Key(c.cfg.Stream).Group(c.cfg.Group).Id(ids...).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpXAck, Err: err}
	}
	return nil
}
