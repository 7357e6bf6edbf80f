package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/richinex/coursebot/model"
)

const (
	skPrefixExchange = "EXCH#"
	skMeta           = "META"

	// maxTxAttempts bounds optimistic retries when a concurrent writer
	// moved the exchange counter.
	maxTxAttempts = 3
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoStore implements ConversationStore on a single DynamoDB table.
//
// Layout per session: PK "SESSION#<id>", one item per exchange with SK
// "EXCH#<seq>", and a META item holding the exchange counter. Each Append
// writes the exchange, bumps the counter, and trims the oldest exchange in
// one TransactWriteItems call guarded by the counter value.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	locks     sessionLocks
	opts      Options
	now       func() time.Time
}

// NewDynamoStore creates a store on an existing table with string keys PK and SK.
func NewDynamoStore(api dynamodbAPI, tableName string, opts ...Option) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("storage: dynamodb api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("storage: dynamodb table name must not be empty")
	}
	return &DynamoStore{
		api:       api,
		tableName: tableName,
		opts:      resolveOptions(opts),
		now:       time.Now,
	}, nil
}

// OpenDynamo loads the default AWS configuration and creates a store.
func OpenDynamo(ctx context.Context, tableName string, opts ...Option) (*DynamoStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewDynamoStore(dynamodb.NewFromConfig(cfg), tableName, opts...)
}

func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

func exchangeSK(seq int) string {
	return fmt.Sprintf("%s%010d", skPrefixExchange, seq)
}

// History implements ConversationStore.
func (s *DynamoStore) History(ctx context.Context, sessionID string) ([]model.Turn, error) {
	out, err := s.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixExchange},
		},
		// Newest first so Limit keeps the most recent exchanges.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(s.opts.Window)),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return nil, historyError(sessionID, fmt.Errorf("failed to query exchanges: %w", err))
	}

	turns := make([]model.Turn, 0, 2*len(out.Items))
	for i := len(out.Items) - 1; i >= 0; i-- {
		item := out.Items[i]
		user, err := strAttr(item, "user")
		if err != nil {
			return nil, historyError(sessionID, err)
		}
		assistant, err := strAttr(item, "assistant")
		if err != nil {
			return nil, historyError(sessionID, err)
		}
		turns = append(turns, exchangeTurns(user, assistant)...)
	}
	return turns, nil
}

// Append implements ConversationStore.
func (s *DynamoStore) Append(ctx context.Context, sessionID, userText, assistantText string) error {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.append(ctx, sessionID, userText, assistantText)
		var canceled *types.TransactionCanceledException
		if err == nil || !errors.As(err, &canceled) {
			break
		}
	}
	if err != nil {
		return appendError(sessionID, err)
	}
	return nil
}

func (s *DynamoStore) append(ctx context.Context, sessionID, userText, assistantText string) error {
	count, err := s.exchangeCount(ctx, sessionID)
	if err != nil {
		return err
	}

	pk := sessionPK(sessionID)
	next := count + 1
	now := s.now().UTC().Format(time.RFC3339Nano)

	items := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName: aws.String(s.tableName),
				Item: map[string]types.AttributeValue{
					"PK":        &types.AttributeValueMemberS{Value: pk},
					"SK":        &types.AttributeValueMemberS{Value: exchangeSK(next)},
					"user":      &types.AttributeValueMemberS{Value: userText},
					"assistant": &types.AttributeValueMemberS{Value: assistantText},
					"createdAt": &types.AttributeValueMemberS{Value: now},
				},
				ConditionExpression: aws.String("attribute_not_exists(SK)"),
			},
		},
		s.counterWrite(pk, count, next, now),
	}

	if stale := next - s.opts.Retain; stale > 0 {
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(s.tableName),
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: pk},
					"SK": &types.AttributeValueMemberS{Value: exchangeSK(stale)},
				},
			},
		})
	}

	_, err = s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return fmt.Errorf("failed to write exchange: %w", err)
	}
	return nil
}

// counterWrite creates META on first append and otherwise advances it,
// conditioned on the value read before the transaction.
func (s *DynamoStore) counterWrite(pk string, count, next int, now string) types.TransactWriteItem {
	if count == 0 {
		return types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(s.tableName),
				Item: map[string]types.AttributeValue{
					"PK":        &types.AttributeValueMemberS{Value: pk},
					"SK":        &types.AttributeValueMemberS{Value: skMeta},
					"exchanges": &types.AttributeValueMemberN{Value: strconv.Itoa(next)},
					"updatedAt": &types.AttributeValueMemberS{Value: now},
				},
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			},
		}
	}
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: pk},
				"SK": &types.AttributeValueMemberS{Value: skMeta},
			},
			UpdateExpression:    aws.String("SET exchanges = :next, updatedAt = :now"),
			ConditionExpression: aws.String("exchanges = :cur"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":next": &types.AttributeValueMemberN{Value: strconv.Itoa(next)},
				":cur":  &types.AttributeValueMemberN{Value: strconv.Itoa(count)},
				":now":  &types.AttributeValueMemberS{Value: now},
			},
		},
	}
}

func (s *DynamoStore) exchangeCount(ctx context.Context, sessionID string) (int, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read session counter: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return 0, nil
	}
	return intAttr(out.Item, "exchanges")
}

// Ping performs a consistent read of a key that never exists.
func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.exchangeCount(ctx, "")
	return err
}

// Close is a no-op; the SDK client holds no resources to release.
func (s *DynamoStore) Close() error {
	return nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	str, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return str.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

// Verify DynamoStore implements ConversationStore
var _ ConversationStore = (*DynamoStore)(nil)
