package dynamo

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/kailas-cloud/omniview/internal/domain/aggregate"
)

type itemDTO struct {
	ID     string `dynamodbav:"id"`
	Title  string `dynamodbav:"title"`
	Author string `dynamodbav:"author"`
	Count  int64  `dynamodbav:"count"`
}

type entityDTO struct {
	ID    string `dynamodbav:"id"`
	Name  string `dynamodbav:"name"`
	Score int64  `dynamodbav:"score"`
}

// restrictionTypeDTO accepts the legacy "score" attribute as the weight.
type restrictionTypeDTO struct {
	ID          string `dynamodbav:"id"`
	Name        string `dynamodbav:"name"`
	Weight      int64  `dynamodbav:"weight"`
	LegacyScore int64  `dynamodbav:"score,omitempty"`
}

type aggregateDTO struct {
	Items            []itemDTO            `dynamodbav:"items"`
	Tags             []string             `dynamodbav:"tags"`
	Entities         []entityDTO          `dynamodbav:"entities"`
	RestrictionTypes []restrictionTypeDTO `dynamodbav:"restrictionTypes"`
	Version          int64                `dynamodbav:"version"`
}

// aggregateFromItem hydrates the domain aggregate from a stored item.
func aggregateFromItem(item map[string]types.AttributeValue) (aggregate.Aggregate, error) {
	var dto aggregateDTO
	if err := attributevalue.UnmarshalMap(item, &dto); err != nil {
		return aggregate.Aggregate{}, fmt.Errorf("unmarshal aggregate: %w", err)
	}

	items := make([]aggregate.Item, len(dto.Items))
	for i, it := range dto.Items {
		items[i] = aggregate.Item{ID: it.ID, Title: it.Title, Author: it.Author, Count: it.Count}
	}
	entities := make([]aggregate.Entity, len(dto.Entities))
	for i, e := range dto.Entities {
		entities[i] = aggregate.Entity{ID: e.ID, Name: e.Name, Score: e.Score}
	}
	rts := make([]aggregate.RestrictionType, len(dto.RestrictionTypes))
	for i, rt := range dto.RestrictionTypes {
		w := rt.Weight
		if w == 0 {
			w = rt.LegacyScore
		}
		rts[i] = aggregate.RestrictionType{ID: rt.ID, Name: rt.Name, Weight: w}
	}
	return aggregate.Reconstruct(items, dto.Tags, entities, rts, dto.Version), nil
}

// listValue encodes the elements of an append or replace mutation as an L
// attribute. An empty mutation still encodes as an empty list, never NULL.
func listValue(m aggregate.Mutation) (types.AttributeValue, error) {
	var vals []types.AttributeValue
	switch m.List {
	case aggregate.ListItems:
		vals = make([]types.AttributeValue, 0, len(m.Items))
		for _, it := range m.Items {
			av, err := attributevalue.MarshalMap(itemDTO{ID: it.ID, Title: it.Title, Author: it.Author, Count: it.Count})
			if err != nil {
				return nil, fmt.Errorf("marshal item %s: %w", it.ID, err)
			}
			vals = append(vals, &types.AttributeValueMemberM{Value: av})
		}
	case aggregate.ListTags:
		vals = make([]types.AttributeValue, 0, len(m.Tags))
		for _, t := range m.Tags {
			vals = append(vals, &types.AttributeValueMemberS{Value: t})
		}
	default:
		return nil, fmt.Errorf("list %q cannot be written", m.List)
	}
	return &types.AttributeValueMemberL{Value: vals}, nil
}
