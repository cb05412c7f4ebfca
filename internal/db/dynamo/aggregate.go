package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/kailas-cloud/omniview/internal/db"
	"github.com/kailas-cloud/omniview/internal/domain/aggregate"
	"github.com/kailas-cloud/omniview/internal/domain/layout"
)

func (s *Store) key() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		layout.PartitionKey: &types.AttributeValueMemberS{Value: s.pk},
		layout.SortKey:      &types.AttributeValueMemberS{Value: s.sk},
	}
}

func number(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

// GetAggregate reads the aggregate with a strongly consistent GetItem,
// projected to the version plus the requested lists.
func (s *Store) GetAggregate(ctx context.Context, lists ...aggregate.List) (aggregate.Aggregate, error) {
	in := &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(),
		ConsistentRead: aws.Bool(true),
	}
	if len(lists) > 0 {
		names := map[string]string{"#v": aggregate.VersionField}
		proj := []string{"#v"}
		for i, l := range lists {
			ph := "#p" + strconv.Itoa(i)
			names[ph] = string(l)
			proj = append(proj, ph)
		}
		in.ProjectionExpression = aws.String(strings.Join(proj, ", "))
		in.ExpressionAttributeNames = names
	}

	out, err := s.api.GetItem(ctx, in)
	if err != nil {
		return aggregate.Aggregate{}, &db.Error{Op: db.OpGetItem, Err: err}
	}
	if len(out.Item) == 0 {
		return aggregate.Aggregate{}, db.ErrKeyNotFound
	}
	agg, err := aggregateFromItem(out.Item)
	if err != nil {
		return aggregate.Aggregate{}, &db.Error{Op: db.OpDecode, Err: err}
	}
	return agg, nil
}

// ApplyMutation translates m into one conditional UpdateItem.
//
//	append:    SET #l = list_append(if_not_exists(#l, :empty), :elems)
//	replace:   SET #l = :elems
//	increment: SET #e[i].#s = if_not_exists(#e[i].#s, :zero) + :dN  (guarded by #e[i].#id = :idN)
//
// Every shape also sets #v = if_not_exists(#v, :zero) + :one under the
// condition #v = :expected.
func (s *Store) ApplyMutation(ctx context.Context, expectedVersion int64, m aggregate.Mutation) error {
	if err := m.Validate(); err != nil {
		return &db.Error{Op: db.OpValidate, Err: err}
	}
	in, err := s.updateInput(expectedVersion, m)
	if err != nil {
		return &db.Error{Op: db.OpValidate, Err: err}
	}

	if _, err := s.api.UpdateItem(ctx, in); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return db.ErrVersionConflict
		}
		return &db.Error{Op: db.OpUpdateItem, Err: err}
	}
	return nil
}

func (s *Store) updateInput(expectedVersion int64, m aggregate.Mutation) (*dynamodb.UpdateItemInput, error) {
	names := map[string]string{"#v": aggregate.VersionField}
	values := map[string]types.AttributeValue{
		":zero":     number(0),
		":one":      number(1),
		":expected": number(expectedVersion),
	}
	set := []string{"#v = if_not_exists(#v, :zero) + :one"}

	cond := "#v = :expected"
	if expectedVersion == 0 {
		cond = "(attribute_not_exists(#v) OR #v = :expected)"
	}

	switch m.Kind {
	case aggregate.MutationAppend, aggregate.MutationReplace:
		elems, err := listValue(m)
		if err != nil {
			return nil, err
		}
		names["#l"] = string(m.List)
		values[":elems"] = elems
		if m.Kind == aggregate.MutationAppend {
			values[":empty"] = &types.AttributeValueMemberL{Value: []types.AttributeValue{}}
			set = append(set, "#l = list_append(if_not_exists(#l, :empty), :elems)")
		} else {
			set = append(set, "#l = :elems")
		}
	case aggregate.MutationIncrement:
		if len(m.Scores) == 0 {
			return nil, fmt.Errorf("increment without deltas")
		}
		names["#e"] = string(aggregate.ListEntities)
		names["#s"] = "score"
		names["#id"] = "id"
		guards := []string{cond}
		for i, d := range m.Scores {
			path := fmt.Sprintf("#e[%d]", d.Index)
			dph, idph := ":d"+strconv.Itoa(i), ":id"+strconv.Itoa(i)
			values[dph] = number(d.Delta)
			values[idph] = &types.AttributeValueMemberS{Value: d.EntityID}
			set = append(set, fmt.Sprintf("%s.#s = if_not_exists(%s.#s, :zero) + %s", path, path, dph))
			guards = append(guards, fmt.Sprintf("%s.#id = %s", path, idph))
		}
		cond = strings.Join(guards, " AND ")
	}

	return &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       s.key(),
		UpdateExpression:          aws.String("SET " + strings.Join(set, ", ")),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}, nil
}
