package maintainer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/omniview/internal/domain"
	"github.com/kailas-cloud/omniview/internal/domain/aggregate"
	"github.com/kailas-cloud/omniview/internal/domain/change"
	"github.com/kailas-cloud/omniview/internal/domain/layout"
	logpkg "github.com/kailas-cloud/omniview/internal/logger"
	"github.com/kailas-cloud/omniview/internal/metrics"
)

// DefaultMaxConflictRetries bounds re-planning of a step after version conflicts.
const DefaultMaxConflictRetries = 5

// Skip reasons reported per batch.
const (
	SkipMalformed  = "malformed"
	SkipIgnored    = "ignored"
	SkipDuplicate  = "duplicate"
	SkipAbsent     = "absent"
	SkipEntityMiss = "entity_miss"
	SkipTypeMiss   = "type_miss"
)

// Report summarises one processed batch.
type Report struct {
	BatchID    string
	Source     string
	Records    int
	Classified map[Kind]int
	Skipped    map[string]int
	Reads      int
	Writes     int
	Conflicts  int
	Duration   time.Duration
}

func (r *Report) skip(reason string, n int) {
	if n > 0 {
		r.Skipped[reason] += n
	}
}

// Service keeps the aggregate in step with batches of change records.
type Service struct {
	store              Store
	classifier         *Classifier
	maxConflictRetries int
	logger             *zap.Logger
}

// New creates a maintainer service.
func New(store Store, l layout.Layout, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:              store,
		classifier:         NewClassifier(l),
		maxConflictRetries: DefaultMaxConflictRetries,
		logger:             logger,
	}
}

// WithMaxConflictRetries configures how often a step is re-planned after a
// version conflict before the batch fails.
func (s *Service) WithMaxConflictRetries(n int) *Service {
	if n >= 0 {
		s.maxConflictRetries = n
	}
	return s
}

// step is one sub-step of a batch: it plans a single mutation from the
// current snapshot.
type step struct {
	kind   Kind
	events int
	always bool // write even when the mutation carries no elements
	plan   func(aggregate.Aggregate) (aggregate.Mutation, map[string]int)
}

func (s *Service) steps(c Classified) []step {
	return []step{
		{kind: KindNewItem, events: len(c.NewItems), plan: func(a aggregate.Aggregate) (aggregate.Mutation, map[string]int) {
			m, dup := planItemAppend(a, c.NewItems)
			return m, map[string]int{SkipDuplicate: dup}
		}},
		{kind: KindNewTag, events: len(c.NewTags), plan: func(a aggregate.Aggregate) (aggregate.Mutation, map[string]int) {
			m, dup := planTagAppend(a, c.NewTags)
			return m, map[string]int{SkipDuplicate: dup}
		}},
		{kind: KindRemovedItem, events: len(c.RemovedItems), always: true, plan: func(a aggregate.Aggregate) (aggregate.Mutation, map[string]int) {
			m, missing := planItemRemoval(a, c.RemovedItems)
			return m, map[string]int{SkipAbsent: missing}
		}},
		{kind: KindRemovedTag, events: len(c.RemovedTags), always: true, plan: func(a aggregate.Aggregate) (aggregate.Mutation, map[string]int) {
			m, missing := planTagRemoval(a, c.RemovedTags)
			return m, map[string]int{SkipAbsent: missing}
		}},
		{kind: KindNewRestriction, events: len(c.NewRestrictions), plan: func(a aggregate.Aggregate) (aggregate.Mutation, map[string]int) {
			m, misses := planScores(a, c.NewRestrictions, signAdd)
			return m, map[string]int{SkipEntityMiss: misses.entity, SkipTypeMiss: misses.typ}
		}},
		{kind: KindRemovedRestriction, events: len(c.RemovedRestrictions), plan: func(a aggregate.Aggregate) (aggregate.Mutation, map[string]int) {
			m, misses := planScores(a, c.RemovedRestrictions, signRemove)
			return m, map[string]int{SkipEntityMiss: misses.entity, SkipTypeMiss: misses.typ}
		}},
	}
}

// Process classifies the batch and runs each step in a fixed order: new
// items, new tags, removed items, removed tags, new restrictions, removed
// restrictions. Every step issues at most one accepted write. The aggregate
// is read only when a step first needs it.
//
// A store failure aborts the batch; writes already accepted stay applied and
// the caller is expected to redeliver the whole batch.
func (s *Service) Process(ctx context.Context, batch change.Batch) (Report, error) {
	start := time.Now()
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.Source == "" {
		batch.Source = "unknown"
	}

	rep := Report{
		BatchID: batch.ID,
		Source:  batch.Source,
		Records: len(batch.Records),
		Skipped: make(map[string]int),
	}

	log := logpkg.FromContextOr(ctx, s.logger).With(
		zap.String("batch_id", batch.ID),
		zap.String("source", batch.Source),
	)

	c := s.classifier.Classify(batch.Records)
	rep.Classified = c.Counts()
	rep.skip(SkipMalformed, c.Malformed)
	rep.skip(SkipIgnored, c.Ignored)

	var err error
	if !c.Empty() {
		loader := NewLoader(s.store, c.Lists()...)
		for _, st := range s.steps(c) {
			if err = s.runStep(ctx, log, loader, st, &rep); err != nil {
				break
			}
		}
		rep.Reads = loader.Reads()
	}

	rep.Duration = time.Since(start)
	s.observe(log, rep, err)
	return rep, err
}

func (s *Service) runStep(ctx context.Context, log *zap.Logger, loader *Loader, st step, rep *Report) error {
	if st.events == 0 {
		return nil
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", st.kind, err)
		}
		agg, err := loader.Load(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w: %w", st.kind, domain.ErrStoreUnavailable, err)
		}

		m, skips := st.plan(agg)
		if m.Len() == 0 && !st.always {
			for reason, n := range skips {
				rep.skip(reason, n)
			}
			return nil
		}

		err = s.store.ApplyMutation(ctx, agg.Version(), m)
		switch {
		case err == nil:
			loader.Commit(m)
			rep.Writes++
			for reason, n := range skips {
				rep.skip(reason, n)
			}
			metrics.AggregateWritesTotal.WithLabelValues(string(m.Kind), "ok").Inc()
			return nil

		case errors.Is(err, domain.ErrVersionConflict):
			rep.Conflicts++
			metrics.AggregateWritesTotal.WithLabelValues(string(m.Kind), "conflict").Inc()
			metrics.VersionConflictsTotal.WithLabelValues(string(st.kind)).Inc()
			if attempt > s.maxConflictRetries {
				return domain.NewVersionConflict(string(st.kind), attempt)
			}
			log.Debug("Aggregate version conflict, reloading",
				zap.String("step", string(st.kind)),
				zap.Int64("expected_version", agg.Version()),
				zap.Int("attempt", attempt),
			)
			if _, err := loader.Refresh(ctx); err != nil {
				return fmt.Errorf("%s: %w: %w", st.kind, domain.ErrStoreUnavailable, err)
			}

		default:
			metrics.AggregateWritesTotal.WithLabelValues(string(m.Kind), "error").Inc()
			return fmt.Errorf("%s: apply %s: %w: %w", st.kind, m.Kind, domain.ErrStoreUnavailable, err)
		}
	}
}

// observe emits the batch metrics and its canonical log line.
func (s *Service) observe(log *zap.Logger, rep Report, err error) {
	status := "ok"
	switch {
	case errors.Is(err, domain.ErrVersionConflict):
		status = "conflict"
	case err != nil:
		status = "error"
	}

	metrics.BatchesTotal.WithLabelValues(rep.Source, status).Inc()
	metrics.BatchDuration.WithLabelValues(rep.Source).Observe(rep.Duration.Seconds())
	for kind, n := range rep.Classified {
		if n > 0 {
			metrics.RecordsClassifiedTotal.WithLabelValues(string(kind)).Add(float64(n))
		}
	}
	for reason, n := range rep.Skipped {
		metrics.RecordsSkippedTotal.WithLabelValues(reason).Add(float64(n))
	}

	fields := []zap.Field{
		zap.Int("records", rep.Records),
		zap.Any("classified", rep.Classified),
		zap.Any("skipped", rep.Skipped),
		zap.Int("reads", rep.Reads),
		zap.Int("writes", rep.Writes),
		zap.Int("conflicts", rep.Conflicts),
		zap.Duration("duration", rep.Duration),
	}
	if err != nil {
		log.Error("Batch failed", append(fields, zap.Error(err))...)
		return
	}
	log.Info("Batch processed", fields...)
}
