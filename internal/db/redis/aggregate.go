package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/omniview/internal/db"
	"github.com/kailas-cloud/omniview/internal/domain/aggregate"
)

type itemDoc struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Count  int64  `json:"count"`
}

type entityDoc struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int64  `json:"score"`
}

// restrictionTypeDoc accepts the legacy "score" field as the weight.
type restrictionTypeDoc struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Weight      int64  `json:"weight"`
	LegacyScore int64  `json:"score,omitempty"`
}

type aggregateDoc struct {
	Items            []itemDoc            `json:"items"`
	Tags             []string             `json:"tags"`
	Entities         []entityDoc          `json:"entities"`
	RestrictionTypes []restrictionTypeDoc `json:"restrictionTypes"`
	Version          int64                `json:"version"`
}

type scoreDoc struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Delta int64  `json:"delta"`
}

// jsonGet retrieves the aggregate document at the given paths.
func (s *Store) jsonGet(ctx context.Context, paths ...string) ([]byte, error) {
	cmd := s.b().Arbitrary("JSON.GET").Keys(s.key).Args(paths...).Build()
	raw, err := s.do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpJSONGet, Err: err}
	}
	if raw == "" {
		return nil, db.ErrKeyNotFound
	}
	return []byte(raw), nil
}

// GetAggregate reads the whole document, or the version plus the requested
// lists when lists are given.
func (s *Store) GetAggregate(ctx context.Context, lists ...aggregate.List) (aggregate.Aggregate, error) {
	if len(lists) == 0 {
		raw, err := s.jsonGet(ctx, "$")
		if err != nil {
			return aggregate.Aggregate{}, err
		}
		var docs []aggregateDoc
		if err := json.Unmarshal(raw, &docs); err != nil {
			return aggregate.Aggregate{}, &db.Error{Op: db.OpDecode, Err: err}
		}
		if len(docs) == 0 {
			return aggregate.Aggregate{}, db.ErrKeyNotFound
		}
		return docs[0].toDomain(), nil
	}

	paths := []string{"$." + aggregate.VersionField}
	for _, l := range lists {
		paths = append(paths, "$."+string(l))
	}
	raw, err := s.jsonGet(ctx, paths...)
	if err != nil {
		return aggregate.Aggregate{}, err
	}
	doc, err := projectedDoc(raw, paths)
	if err != nil {
		return aggregate.Aggregate{}, &db.Error{Op: db.OpDecode, Err: err}
	}
	return doc.toDomain(), nil
}

// projectedDoc folds a multi-path JSON.GET reply back into one document.
// Each path maps to an array of matches; a missing path has no matches.
func projectedDoc(raw []byte, paths []string) (aggregateDoc, error) {
	var byPath map[string][]json.RawMessage
	if err := json.Unmarshal(raw, &byPath); err != nil {
		return aggregateDoc{}, fmt.Errorf("unmarshal projection: %w", err)
	}

	merged := make(map[string]json.RawMessage, len(paths))
	for _, p := range paths {
		if m := byPath[p]; len(m) > 0 {
			merged[p[2:]] = m[0]
		}
	}
	b, err := json.Marshal(merged)
	if err != nil {
		return aggregateDoc{}, err
	}
	var doc aggregateDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return aggregateDoc{}, fmt.Errorf("unmarshal aggregate: %w", err)
	}
	return doc, nil
}

func (d aggregateDoc) toDomain() aggregate.Aggregate {
	items := make([]aggregate.Item, len(d.Items))
	for i, it := range d.Items {
		items[i] = aggregate.Item{ID: it.ID, Title: it.Title, Author: it.Author, Count: it.Count}
	}
	entities := make([]aggregate.Entity, len(d.Entities))
	for i, e := range d.Entities {
		entities[i] = aggregate.Entity{ID: e.ID, Name: e.Name, Score: e.Score}
	}
	rts := make([]aggregate.RestrictionType, len(d.RestrictionTypes))
	for i, rt := range d.RestrictionTypes {
		w := rt.Weight
		if w == 0 {
			w = rt.LegacyScore
		}
		rts[i] = aggregate.RestrictionType{ID: rt.ID, Name: rt.Name, Weight: w}
	}
	return aggregate.Reconstruct(items, d.Tags, entities, rts, d.Version)
}

// ApplyMutation runs the mutation script against the document. The script
// checks the version and the entity guards before touching anything.
func (s *Store) ApplyMutation(ctx context.Context, expectedVersion int64, m aggregate.Mutation) error {
	if err := m.Validate(); err != nil {
		return &db.Error{Op: db.OpValidate, Err: err}
	}
	payload, err := mutationPayload(m)
	if err != nil {
		return &db.Error{Op: db.OpValidate, Err: err}
	}

	cmd := s.b().Eval().Script(mutationScript).Numkeys(1).Key(s.key).
		Arg(strconv.FormatInt(expectedVersion, 10), string(m.Kind), string(m.List), string(payload)).
		Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if IsRedisErr(err, "versionconflict") {
			return db.ErrVersionConflict
		}
		return &db.Error{Op: db.OpEval, Err: err}
	}
	return nil
}

func mutationPayload(m aggregate.Mutation) ([]byte, error) {
	switch m.Kind {
	case aggregate.MutationIncrement:
		scores := make([]scoreDoc, len(m.Scores))
		for i, d := range m.Scores {
			scores[i] = scoreDoc{Index: d.Index, ID: d.EntityID, Delta: d.Delta}
		}
		return json.Marshal(scores)
	default:
		switch m.List {
		case aggregate.ListItems:
			items := make([]itemDoc, len(m.Items))
			for i, it := range m.Items {
				items[i] = itemDoc{ID: it.ID, Title: it.Title, Author: it.Author, Count: it.Count}
			}
			return json.Marshal(items)
		case aggregate.ListTags:
			tags := m.Tags
			if tags == nil {
				tags = []string{}
			}
			return json.Marshal(tags)
		}
	}
	return nil, fmt.Errorf("list %q cannot be written", m.List)
}
