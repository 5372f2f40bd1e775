// Package dynamo stores archive documents in DynamoDB, one table per collection.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/JonMunkholm/archive/internal/schema"
	"github.com/JonMunkholm/archive/internal/store"
)

// API is the subset of the DynamoDB client the store uses.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Store is a DocumentStore on DynamoDB.
type Store struct {
	client      API
	tablePrefix string
	// pingTable is the table DescribeTable is called on for readiness.
	pingTable string
	now       func() time.Time
}

// New creates a store. The table for a collection is
// tablePrefix + databaseID + "-" + collectionID and must have "id" as its hash key.
func New(client API, tablePrefix, databaseID, collectionID string) *Store {
	s := &Store{client: client, tablePrefix: tablePrefix, now: time.Now}
	s.pingTable = s.table(databaseID, collectionID)
	return s
}

func (s *Store) table(databaseID, collectionID string) string {
	return s.tablePrefix + databaseID + "-" + collectionID
}

func (s *Store) Name() string { return "dynamodb" }

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.pingTable),
	})
	return err
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func (s *Store) ListDocuments(ctx context.Context, databaseID, collectionID string, queries []string) (store.Page, error) {
	plan, err := store.BuildPlan(queries)
	if err != nil {
		return store.Page{}, err
	}

	input := &dynamodb.ScanInput{
		TableName: aws.String(s.table(databaseID, collectionID)),
	}
	// Equality is exact and can be filtered server side. Search is
	// case-insensitive, which DynamoDB's contains() is not, so it runs in Apply.
	if len(plan.Equal) > 0 {
		expr, names, values := equalFilter(plan.Equal)
		input.FilterExpression = aws.String(expr)
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}

	var records []schema.Record
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return store.Page{}, fmt.Errorf("scan documents: %w", err)
		}
		var batch []schema.Record
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &batch); err != nil {
			return store.Page{}, fmt.Errorf("decode documents: %w", err)
		}
		records = append(records, batch...)
	}

	return plan.Apply(records), nil
}

// equalFilter renders equality conditions as "#f0 IN (:f0v0, :f0v1) AND ...".
func equalFilter(conds []store.Condition) (string, map[string]string, map[string]types.AttributeValue) {
	names := make(map[string]string)
	values := make(map[string]types.AttributeValue)
	clauses := make([]string, 0, len(conds))

	for i, c := range conds {
		name := fmt.Sprintf("#f%d", i)
		names[name] = string(c.Field)

		placeholders := make([]string, len(c.Values))
		for j, v := range c.Values {
			ph := fmt.Sprintf(":f%dv%d", i, j)
			placeholders[j] = ph
			values[ph] = &types.AttributeValueMemberS{Value: v}
		}
		clauses = append(clauses, fmt.Sprintf("%s IN (%s)", name, strings.Join(placeholders, ", ")))
	}

	return strings.Join(clauses, " AND "), names, values
}

func (s *Store) GetDocument(ctx context.Context, databaseID, collectionID, id string) (schema.Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table(databaseID, collectionID)),
		Key:            idKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return schema.Record{}, fmt.Errorf("get %s: %w", id, err)
	}
	if out.Item == nil {
		return schema.Record{}, fmt.Errorf("get %s: %w", id, store.ErrNotFound)
	}

	var r schema.Record
	if err := attributevalue.UnmarshalMap(out.Item, &r); err != nil {
		return schema.Record{}, fmt.Errorf("decode %s: %w", id, err)
	}
	return r, nil
}

func (s *Store) CreateDocument(ctx context.Context, databaseID, collectionID, id string, fields schema.Fields) (schema.Record, error) {
	now := s.now().UTC()
	r := schema.Record{
		Meta: schema.Meta{
			ID:           id,
			Permissions:  append([]string(nil), store.DefaultPermissions...),
			CreatedAt:    now,
			UpdatedAt:    now,
			DatabaseID:   databaseID,
			CollectionID: collectionID,
		},
		Fields: fields,
	}

	item, err := attributevalue.MarshalMap(r)
	if err != nil {
		return schema.Record{}, fmt.Errorf("encode %s: %w", id, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table(databaseID, collectionID)),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if isConditionFailed(err) {
		return schema.Record{}, fmt.Errorf("create %s: duplicate key", id)
	}
	if err != nil {
		return schema.Record{}, fmt.Errorf("create %s: %w", id, err)
	}
	return r, nil
}

func (s *Store) UpdateDocument(ctx context.Context, databaseID, collectionID, id string, fields schema.Fields) (schema.Record, error) {
	values := map[string]types.AttributeValue{
		":updatedAt": &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339Nano)},
	}
	names := map[string]string{"#updatedAt": "updatedAt"}
	sets := []string{"#updatedAt = :updatedAt"}

	for i, spec := range schema.FieldSpecs {
		name := fmt.Sprintf("#f%d", i)
		ph := fmt.Sprintf(":f%d", i)
		names[name] = string(spec.Field)
		values[ph] = &types.AttributeValueMemberS{Value: fields.Get(spec.Field)}
		sets = append(sets, name+" = "+ph)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table(databaseID, collectionID)),
		Key:                       idKey(id),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String("attribute_exists(id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return schema.Record{}, fmt.Errorf("update %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return schema.Record{}, fmt.Errorf("update %s: %w", id, err)
	}

	var r schema.Record
	if err := attributevalue.UnmarshalMap(out.Attributes, &r); err != nil {
		return schema.Record{}, fmt.Errorf("decode %s: %w", id, err)
	}
	return r, nil
}

func (s *Store) DeleteDocument(ctx context.Context, databaseID, collectionID, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.table(databaseID, collectionID)),
		Key:                 idKey(id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("delete %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}
