package maintainer

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/omniview/internal/db"
	"github.com/kailas-cloud/omniview/internal/db/memory"
	"github.com/kailas-cloud/omniview/internal/domain"
	"github.com/kailas-cloud/omniview/internal/domain/aggregate"
	"github.com/kailas-cloud/omniview/internal/domain/change"
	"github.com/kailas-cloud/omniview/internal/domain/layout"
	logpkg "github.com/kailas-cloud/omniview/internal/logger"
	"github.com/kailas-cloud/omniview/internal/metrics"
)

func newService(store Store) *Service {
	return New(store, layout.Default(), zap.NewNop())
}

func process(t *testing.T, svc *Service, source string, records ...change.Record) Report {
	t.Helper()
	rep, err := svc.Process(context.Background(), change.Batch{Source: source, Records: records})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return rep
}

func entityScore(t *testing.T, agg aggregate.Aggregate, id string) int64 {
	t.Helper()
	i := agg.EntityIndex(id)
	if i < 0 {
		t.Fatalf("entity %s not in aggregate", id)
	}
	return agg.Entities()[i].Score
}

func restrictionAggregate(score int64, types ...aggregate.RestrictionType) aggregate.Aggregate {
	return aggregate.Reconstruct(nil, nil,
		[]aggregate.Entity{{ID: "W", Name: "other"}, {ID: "X", Name: "unit", Score: score}},
		types, 1,
	)
}

// --- idempotency ---

func TestProcess_ReplayAddsNothing(t *testing.T) {
	store := memory.New()
	svc := newService(store)
	batch := []change.Record{itemCreated("b1"), tagCreated("b1", "fantasy")}

	first := process(t, svc, "test", batch...)
	if first.Writes != 2 {
		t.Fatalf("first writes = %d, want 2", first.Writes)
	}

	second := process(t, svc, "test", batch...)
	if second.Writes != 0 {
		t.Errorf("replay writes = %d, want 0", second.Writes)
	}
	if second.Skipped[SkipDuplicate] != 2 {
		t.Errorf("duplicate skips = %d, want 2", second.Skipped[SkipDuplicate])
	}

	agg := store.Snapshot()
	if !slices.Equal(itemIDs(agg.Items()), []string{"b1"}) {
		t.Errorf("items = %v", itemIDs(agg.Items()))
	}
	if !slices.Equal(agg.Tags(), []string{"fantasy"}) {
		t.Errorf("tags = %v", agg.Tags())
	}
}

func TestProcess_IntraBatchDuplicatesCollapsed(t *testing.T) {
	store := memory.New()
	svc := newService(store)

	rep := process(t, svc, "test",
		itemCreated("b1"), itemCreated("b1"), tagCreated("b1", "x"), tagCreated("b2", "x"),
	)

	agg := store.Snapshot()
	if !slices.Equal(itemIDs(agg.Items()), []string{"b1"}) {
		t.Errorf("items = %v", itemIDs(agg.Items()))
	}
	if !slices.Equal(agg.Tags(), []string{"x"}) {
		t.Errorf("tags = %v", agg.Tags())
	}
	if rep.Skipped[SkipDuplicate] != 2 {
		t.Errorf("duplicate skips = %d, want 2", rep.Skipped[SkipDuplicate])
	}
}

// --- removal ---

func TestProcess_RemovalOfAbsentIsNoOp(t *testing.T) {
	store := memory.NewWith(aggregate.Reconstruct(
		[]aggregate.Item{{ID: "a"}, {ID: "b"}}, []string{"x"}, nil, nil, 4,
	))
	svc := newService(store)

	rep := process(t, svc, "test", itemRemoved("zz"), tagRemoved("zz", "nope"))

	agg := store.Snapshot()
	if !slices.Equal(itemIDs(agg.Items()), []string{"a", "b"}) {
		t.Errorf("items = %v", itemIDs(agg.Items()))
	}
	if !slices.Equal(agg.Tags(), []string{"x"}) {
		t.Errorf("tags = %v", agg.Tags())
	}
	if rep.Writes != 2 {
		t.Errorf("writes = %d, want one replace per list", rep.Writes)
	}
	for _, w := range store.Committed() {
		if w.Mutation.Kind != aggregate.MutationReplace {
			t.Errorf("unexpected %s write", w.Mutation.Kind)
		}
	}
}

func TestProcess_Removal(t *testing.T) {
	store := memory.NewWith(aggregate.Reconstruct(
		[]aggregate.Item{{ID: "a"}, {ID: "b"}, {ID: "c"}}, []string{"x", "y"}, nil, nil, 4,
	))
	svc := newService(store)

	process(t, svc, "test", itemRemoved("b"), itemRemoved("c"), tagRemoved("a", "y"))

	agg := store.Snapshot()
	if !slices.Equal(itemIDs(agg.Items()), []string{"a"}) {
		t.Errorf("items = %v", itemIDs(agg.Items()))
	}
	if !slices.Equal(agg.Tags(), []string{"x"}) {
		t.Errorf("tags = %v", agg.Tags())
	}
	if agg.Version() != 6 {
		t.Errorf("version = %d, want 6", agg.Version())
	}
}

func TestProcess_LaterStepsSeeEarlierWrites(t *testing.T) {
	store := memory.New()
	svc := newService(store)

	rep := process(t, svc, "test", itemCreated("b1"), itemRemoved("b1"))

	if len(store.Snapshot().Items()) != 0 {
		t.Errorf("items = %v, want none", itemIDs(store.Snapshot().Items()))
	}
	if rep.Conflicts != 0 {
		t.Errorf("conflicts = %d, want 0", rep.Conflicts)
	}
	if rep.Reads != 1 {
		t.Errorf("reads = %d, want 1", rep.Reads)
	}
}

// --- scores ---

func TestProcess_ScoreAddThenRemove(t *testing.T) {
	store := memory.NewWith(restrictionAggregate(10, aggregate.RestrictionType{ID: "T1", Weight: 4}))
	svc := newService(store)

	process(t, svc, "test", banCreated("X", "T1"))
	if got := entityScore(t, store.Snapshot(), "X"); got != 14 {
		t.Fatalf("score after add = %d, want 14", got)
	}

	process(t, svc, "test", banRemoved("X", "T1"))
	if got := entityScore(t, store.Snapshot(), "X"); got != 10 {
		t.Errorf("score after remove = %d, want 10", got)
	}
	if got := entityScore(t, store.Snapshot(), "W"); got != 0 {
		t.Errorf("untouched entity score = %d, want 0", got)
	}
}

func TestProcess_ScoreOrderIndependent(t *testing.T) {
	types := []aggregate.RestrictionType{{ID: "T1", Weight: 3}, {ID: "T2", Weight: 7}}
	orders := map[string][]change.Record{
		"T1 first": {banCreated("X", "T1"), banCreated("X", "T2")},
		"T2 first": {banCreated("X", "T2"), banCreated("X", "T1")},
	}

	for name, records := range orders {
		t.Run(name, func(t *testing.T) {
			store := memory.NewWith(restrictionAggregate(5, types...))
			rep := process(t, newService(store), "test", records...)

			if got := entityScore(t, store.Snapshot(), "X"); got != 15 {
				t.Errorf("score = %d, want 15", got)
			}
			if rep.Writes != 1 {
				t.Errorf("writes = %d, want 1", rep.Writes)
			}
		})
	}
}

func TestProcess_ScoreCanGoNegative(t *testing.T) {
	store := memory.NewWith(restrictionAggregate(0, aggregate.RestrictionType{ID: "T1", Weight: 2}))

	process(t, newService(store), "test", banRemoved("X", "T1"), banRemoved("X", "T1"))
	if got := entityScore(t, store.Snapshot(), "X"); got != -4 {
		t.Errorf("score = %d, want -4", got)
	}
}

func TestProcess_MissingLookupSkips(t *testing.T) {
	store := memory.NewWith(restrictionAggregate(0, aggregate.RestrictionType{ID: "T1", Weight: 2}))

	rep := process(t, newService(store), "test", banCreated("nobody", "T1"), banCreated("X", "T404"))
	if len(store.Journal()) != 0 {
		t.Errorf("expected zero writes, got %d", len(store.Journal()))
	}
	if rep.Skipped[SkipEntityMiss] != 1 || rep.Skipped[SkipTypeMiss] != 1 {
		t.Errorf("skipped = %v", rep.Skipped)
	}
}

func TestProcess_CreationAndRemovalInOneBatch(t *testing.T) {
	store := memory.NewWith(restrictionAggregate(1, aggregate.RestrictionType{ID: "T1", Weight: 6}))

	rep := process(t, newService(store), "test", banCreated("X", "T1"), banRemoved("X", "T1"))
	if got := entityScore(t, store.Snapshot(), "X"); got != 1 {
		t.Errorf("score = %d, want 1", got)
	}
	if rep.Writes != 2 {
		t.Errorf("writes = %d, want 2", rep.Writes)
	}
}

// --- end to end ---

func TestProcess_EndToEnd(t *testing.T) {
	store := memory.NewWith(aggregate.Reconstruct(nil, nil,
		[]aggregate.Entity{{ID: "X", Score: 0}},
		[]aggregate.RestrictionType{{ID: "T1", Weight: 5}},
		0,
	))
	svc := newService(store)

	rep := process(t, svc, "test", itemCreated("B1"), banCreated("X", "T1"))

	agg := store.Snapshot()
	if len(agg.Items()) != 1 || agg.Items()[0].ID != "B1" || agg.Items()[0].Count != 0 {
		t.Errorf("items = %+v", agg.Items())
	}
	if agg.Items()[0].Title != "Title B1" {
		t.Errorf("title = %q", agg.Items()[0].Title)
	}
	if len(agg.Entities()) != 1 || agg.Entities()[0] != (aggregate.Entity{ID: "X", Score: 5}) {
		t.Errorf("entities = %+v", agg.Entities())
	}
	if rep.Classified[KindNewItem] != 1 || rep.Classified[KindNewRestriction] != 1 {
		t.Errorf("classified = %v", rep.Classified)
	}
	if rep.Reads != 1 || rep.Writes != 2 {
		t.Errorf("reads = %d writes = %d, want 1/2", rep.Reads, rep.Writes)
	}
}

func TestProcess_NothingToDoSkipsRead(t *testing.T) {
	store := memory.New()
	update := itemCreated("b1")
	update.Old = update.New

	rep := process(t, newService(store), "test", update)
	if store.Reads() != 0 {
		t.Errorf("reads = %d, want 0", store.Reads())
	}
	if rep.Skipped[SkipIgnored] != 1 {
		t.Errorf("skipped = %v", rep.Skipped)
	}
	if rep.BatchID == "" {
		t.Error("expected generated batch id")
	}
}

func TestProcess_ProjectsNeededLists(t *testing.T) {
	ms := &mockStore{}
	svc := newService(ms)

	process(t, svc, "test", tagCreated("b1", "x"))
	if len(ms.gets) != 1 || !slices.Equal(ms.gets[0], []aggregate.List{aggregate.ListTags}) {
		t.Errorf("gets = %v", ms.gets)
	}
}

// --- concurrency ---

func TestProcess_ConflictRetriesWithFreshRead(t *testing.T) {
	store := memory.New()
	store.BeforeWrite = func(s *memory.Store) {
		// A concurrent batch appended b0 first.
		s.Put(aggregate.Reconstruct([]aggregate.Item{{ID: "b0"}}, nil, nil, nil, 1))
	}

	rep := process(t, newService(store), "test", itemCreated("b1"))

	agg := store.Snapshot()
	if !slices.Equal(itemIDs(agg.Items()), []string{"b0", "b1"}) {
		t.Errorf("items = %v", itemIDs(agg.Items()))
	}
	if rep.Conflicts != 1 || rep.Reads != 2 {
		t.Errorf("conflicts = %d reads = %d, want 1/2", rep.Conflicts, rep.Reads)
	}
	if agg.Version() != 2 {
		t.Errorf("version = %d, want 2", agg.Version())
	}
}

func TestProcess_ConcurrentRemovalNotUndone(t *testing.T) {
	store := memory.NewWith(aggregate.Reconstruct([]aggregate.Item{{ID: "a"}, {ID: "b"}}, nil, nil, nil, 3))
	store.BeforeWrite = func(s *memory.Store) {
		// Another batch removed a between our read and our write.
		s.Put(aggregate.Reconstruct([]aggregate.Item{{ID: "b"}}, nil, nil, nil, 4))
	}

	process(t, newService(store), "test", itemRemoved("b"))

	if items := store.Snapshot().Items(); len(items) != 0 {
		t.Errorf("items = %v, want none", itemIDs(items))
	}
}

func TestProcess_ScoreFollowsReorderedEntity(t *testing.T) {
	store := memory.NewWith(restrictionAggregate(0, aggregate.RestrictionType{ID: "T1", Weight: 9}))
	store.BeforeWrite = func(s *memory.Store) {
		s.Put(aggregate.Reconstruct(nil, nil,
			[]aggregate.Entity{{ID: "X", Score: 1}, {ID: "W"}},
			[]aggregate.RestrictionType{{ID: "T1", Weight: 9}},
			2,
		))
	}

	rep := process(t, newService(store), "test", banCreated("X", "T1"))

	agg := store.Snapshot()
	if got := entityScore(t, agg, "X"); got != 10 {
		t.Errorf("X score = %d, want 10", got)
	}
	if got := entityScore(t, agg, "W"); got != 0 {
		t.Errorf("W score = %d, want 0", got)
	}
	if rep.Conflicts != 1 {
		t.Errorf("conflicts = %d, want 1", rep.Conflicts)
	}
}

func TestProcess_ConflictExhausted(t *testing.T) {
	ms := &mockStore{
		applyFn: func(context.Context, int64, aggregate.Mutation) error { return db.ErrVersionConflict },
	}
	svc := newService(ms).WithMaxConflictRetries(2)
	before := testutil.ToFloat64(metrics.VersionConflictsTotal.WithLabelValues(string(KindNewTag)))

	rep, err := svc.Process(context.Background(), change.Batch{Source: "exhaust", Records: []change.Record{tagCreated("b", "x")}})
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	var vc *domain.VersionConflictError
	if !errors.As(err, &vc) || vc.Step != string(KindNewTag) || vc.Attempts != 3 {
		t.Errorf("conflict error = %+v", vc)
	}
	if ms.applies != 3 || len(ms.gets) != 3 {
		t.Errorf("applies = %d gets = %d, want 3/3", ms.applies, len(ms.gets))
	}
	if rep.Conflicts != 3 {
		t.Errorf("conflicts = %d, want 3", rep.Conflicts)
	}
	if got := testutil.ToFloat64(metrics.VersionConflictsTotal.WithLabelValues(string(KindNewTag))) - before; got != 3 {
		t.Errorf("version_conflicts_total delta = %f, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.BatchesTotal.WithLabelValues("exhaust", "conflict")); got != 1 {
		t.Errorf("batches_total{conflict} = %f, want 1", got)
	}
}

// --- failures ---

func TestProcess_ReadFailureAborts(t *testing.T) {
	store := memory.New()
	store.GetErr = errors.New("connection reset")

	_, err := newService(store).Process(context.Background(), change.Batch{Records: []change.Record{itemCreated("b1")}})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if len(store.Journal()) != 0 {
		t.Errorf("expected no writes, got %d", len(store.Journal()))
	}
}

func TestProcess_WriteFailureAbortsRemainingSteps(t *testing.T) {
	ms := &mockStore{
		applyFn: func(context.Context, int64, aggregate.Mutation) error {
			return &db.Error{Op: db.OpUpdateItem, Err: errors.New("throttled")}
		},
	}

	rep, err := newService(ms).Process(context.Background(), change.Batch{
		Source:  "fail",
		Records: []change.Record{itemCreated("b1"), tagCreated("b1", "x")},
	})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if errors.Is(err, domain.ErrVersionConflict) {
		t.Error("write failure must not read as a conflict")
	}
	var dbErr *db.Error
	if !errors.As(err, &dbErr) {
		t.Errorf("expected wrapped *db.Error, got %v", err)
	}
	if ms.applies != 1 {
		t.Errorf("applies = %d, want 1", ms.applies)
	}
	if rep.Writes != 0 {
		t.Errorf("writes = %d, want 0", rep.Writes)
	}
	if got := testutil.ToFloat64(metrics.BatchesTotal.WithLabelValues("fail", "error")); got != 1 {
		t.Errorf("batches_total{error} = %f, want 1", got)
	}
}

func TestProcess_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := memory.New()
	_, err := newService(store).Process(ctx, change.Batch{Records: []change.Record{itemCreated("b1")}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if store.Reads() != 0 {
		t.Errorf("reads = %d, want 0", store.Reads())
	}
}

func TestProcess_Metrics(t *testing.T) {
	store := memory.New()
	svc := newService(store)
	before := testutil.ToFloat64(metrics.RecordsClassifiedTotal.WithLabelValues(string(KindNewItem)))

	process(t, svc, "metrics", itemCreated("m1"), itemCreated("m2"))

	if got := testutil.ToFloat64(metrics.BatchesTotal.WithLabelValues("metrics", "ok")); got != 1 {
		t.Errorf("batches_total{ok} = %f, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.RecordsClassifiedTotal.WithLabelValues(string(KindNewItem))) - before; got != 2 {
		t.Errorf("records_classified_total delta = %f, want 2", got)
	}
}

func TestProcess_CanonicalLogLineUsesContextLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	svc := newService(memory.New())

	ctx := logpkg.ContextWithLogger(context.Background(), zap.New(core).With(zap.String("request_id", "r-9")))
	if _, err := svc.Process(ctx, change.Batch{ID: "b-9", Source: "test", Records: []change.Record{itemCreated("b1")}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := logs.FilterMessage("Batch processed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one canonical line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "r-9" || fields["batch_id"] != "b-9" || fields["source"] != "test" {
		t.Errorf("fields = %v", fields)
	}
	if fields["writes"] != int64(1) {
		t.Errorf("writes = %v, want 1", fields["writes"])
	}
}
