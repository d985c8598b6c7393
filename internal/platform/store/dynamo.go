package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoStore is a Store backed by a single DynamoDB table keyed by
// (collection, key). Useful when the resilience core runs server-side and
// queue durability must survive instance loss.
type DynamoStore struct {
	client *dynamodb.Client
	table  string
}

// dynamoItem is the table row shape.
type dynamoItem struct {
	Collection string `dynamodbav:"col"`
	Key        string `dynamodbav:"k"`
	Value      []byte `dynamodbav:"v"`
}

// NewDynamoStore creates a DynamoDB-backed store. The table must exist with
// partition key "col" (S) and sort key "k" (S).
func NewDynamoStore(cfg aws.Config, table string) *DynamoStore {
	return &DynamoStore{
		client: dynamodb.NewFromConfig(cfg),
		table:  table,
	}
}

func (s *DynamoStore) itemKey(collection, key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"col": &types.AttributeValueMemberS{Value: collection},
		"k":   &types.AttributeValueMemberS{Value: key},
	}
}

// Get retrieves the value stored under key in collection.
func (s *DynamoStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       s.itemKey(collection, key),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo get %s/%s: %w", collection, key, err)
	}
	if out.Item == nil {
		return nil, ErrKeyNotFound
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("dynamo unmarshal %s/%s: %w", collection, key, err)
	}
	return item.Value, nil
}

// Put stores value under key in collection.
func (s *DynamoStore) Put(ctx context.Context, collection, key string, value []byte) error {
	item, err := attributevalue.MarshalMap(dynamoItem{
		Collection: collection,
		Key:        key,
		Value:      value,
	})
	if err != nil {
		return fmt.Errorf("dynamo marshal %s/%s: %w", collection, key, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamo put %s/%s: %w", collection, key, err)
	}
	return nil
}

// Delete removes key from collection.
func (s *DynamoStore) Delete(ctx context.Context, collection, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       s.itemKey(collection, key),
	})
	if err != nil {
		return fmt.Errorf("dynamo delete %s/%s: %w", collection, key, err)
	}
	return nil
}

// GetAll returns every key/value pair in collection via a partition query.
func (s *DynamoStore) GetAll(ctx context.Context, collection string) (map[string][]byte, error) {
	out := make(map[string][]byte)

	var lastKey map[string]types.AttributeValue
	for {
		resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("col = :c"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":c": &types.AttributeValueMemberS{Value: collection},
			},
			ExclusiveStartKey: lastKey,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamo query %s: %w", collection, err)
		}

		var items []dynamoItem
		if err := attributevalue.UnmarshalListOfMaps(resp.Items, &items); err != nil {
			return nil, fmt.Errorf("dynamo unmarshal %s: %w", collection, err)
		}
		for _, item := range items {
			out[item.Key] = item.Value
		}

		if resp.LastEvaluatedKey == nil {
			break
		}
		lastKey = resp.LastEvaluatedKey
	}
	return out, nil
}

// Keys returns every key in collection.
func (s *DynamoStore) Keys(ctx context.Context, collection string) ([]string, error) {
	all, err := s.GetAll(ctx, collection)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	return keys, nil
}

// Clear removes all entries from collection.
func (s *DynamoStore) Clear(ctx context.Context, collection string) error {
	keys, err := s.Keys(ctx, collection)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.Delete(ctx, collection, k); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op; the SDK client holds no long-lived connections.
func (s *DynamoStore) Close() error {
	return nil
}
