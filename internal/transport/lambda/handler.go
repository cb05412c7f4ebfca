// Package lambda adapts DynamoDB stream triggers to the maintainer.
package lambda

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"

	"github.com/kailas-cloud/omniview/internal/domain/change"
	logpkg "github.com/kailas-cloud/omniview/internal/logger"
	"github.com/kailas-cloud/omniview/internal/usecase/maintainer"
)

// Source labels batches delivered by the stream trigger.
const Source = "dynamodb_stream"

// BatchProcessor applies a batch of change records to the aggregate.
type BatchProcessor interface {
	Process(ctx context.Context, batch change.Batch) (maintainer.Report, error)
}

// Handler is the Lambda entry point for stream batches.
type Handler struct {
	batches BatchProcessor
	logger  *zap.Logger
}

// NewHandler creates a stream handler.
func NewHandler(batches BatchProcessor, logger *zap.Logger) *Handler {
	return &Handler{batches: batches, logger: logger}
}

// Handle processes one stream delivery. A returned error makes Lambda
// redeliver the whole batch.
func (h *Handler) Handle(ctx context.Context, ev events.DynamoDBEvent) error {
	batch := change.Batch{Source: Source, Records: RecordsFromEvent(ev)}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		batch.ID = lc.AwsRequestID
	}

	ctx = logpkg.WithFields(ctx, h.logger, zap.String("request_id", batch.ID))

	if _, err := h.batches.Process(ctx, batch); err != nil {
		logpkg.FromContext(ctx).Error("Stream batch failed, requesting redelivery",
			zap.Int("records", len(batch.Records)),
			zap.Error(err),
		)
		return fmt.Errorf("process stream batch: %w", err)
	}
	return nil
}

// RecordsFromEvent converts stream records, keeping batch order.
func RecordsFromEvent(ev events.DynamoDBEvent) []change.Record {
	records := make([]change.Record, len(ev.Records))
	for i, r := range ev.Records {
		records[i] = change.Record{
			EventID:   r.EventID,
			EventName: r.EventName,
			Keys:      imageFromAttributes(r.Change.Keys),
			New:       imageFromAttributes(r.Change.NewImage),
			Old:       imageFromAttributes(r.Change.OldImage),
		}
	}
	return records
}

// imageFromAttributes returns nil for an absent or empty image.
func imageFromAttributes(attrs map[string]events.DynamoDBAttributeValue) change.Image {
	if len(attrs) == 0 {
		return nil
	}
	img := make(change.Image, len(attrs))
	for name, av := range attrs {
		if v, ok := valueFromAttribute(av); ok {
			img[name] = v
		}
	}
	return img
}

// valueFromAttribute converts one attribute. Binary attributes are dropped.
func valueFromAttribute(av events.DynamoDBAttributeValue) (change.Value, bool) {
	switch av.DataType() {
	case events.DataTypeString:
		s := av.String()
		return change.Value{S: &s}, true
	case events.DataTypeNumber:
		n := av.Number()
		return change.Value{N: &n}, true
	case events.DataTypeStringSet:
		return change.Value{SS: av.StringSet()}, true
	case events.DataTypeNumberSet:
		return change.Value{NS: av.NumberSet()}, true
	case events.DataTypeBoolean:
		b := av.Boolean()
		return change.Value{BOOL: &b}, true
	case events.DataTypeNull:
		return change.Value{NULL: true}, true
	case events.DataTypeList:
		src := av.List()
		list := make([]change.Value, 0, len(src))
		for _, e := range src {
			if v, ok := valueFromAttribute(e); ok {
				list = append(list, v)
			}
		}
		return change.Value{L: list}, true
	case events.DataTypeMap:
		m := make(map[string]change.Value, len(av.Map()))
		for k, e := range av.Map() {
			if v, ok := valueFromAttribute(e); ok {
				m[k] = v
			}
		}
		return change.Value{M: m}, true
	default:
		return change.Value{}, false
	}
}
