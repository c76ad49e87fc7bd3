package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"coach-agent/internal/domain"
)

const (
	skPrefixTurn = "TURN#"
	skSeq        = "SEQ#"

	// skTimeLayout is fixed width so lexical SK order equals time order.
	skTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// ReadWriter defines the turn log operations consumed by the coach service.
type ReadWriter interface {
	AppendTurn(ctx context.Context, turn domain.Turn) (domain.Turn, error)
	LastTurns(ctx context.Context, userID int64, n int) ([]domain.Turn, error)
	AllTurns(ctx context.Context, userID int64) ([]domain.Turn, error)
}

var _ ReadWriter = (*Client)(nil)

// Client wraps a DynamoDB table holding one append-only turn log per user.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

type Option func(*Client)

// WithClock overrides the clock used to stamp new turns.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	c := &Client{api: api, tableName: tableName, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// userPK returns the partition key holding a user's turn log.
func userPK(userID int64) string {
	return "USER#" + strconv.FormatInt(userID, 10)
}

// turnSK sorts by creation time, then by id.
func turnSK(createdAt time.Time, id int64) string {
	return fmt.Sprintf("%s%s#%020d", skPrefixTurn, createdAt.UTC().Format(skTimeLayout), id)
}

// AppendTurn assigns the next id and a creation timestamp, then writes the
// turn. The returned turn carries the assigned fields.
func (c *Client) AppendTurn(ctx context.Context, turn domain.Turn) (domain.Turn, error) {
	if turn.UserID <= 0 {
		return domain.Turn{}, errors.New("repository: AppendTurn: user id is required")
	}
	if turn.Sender != domain.SenderUser && turn.Sender != domain.SenderAI {
		return domain.Turn{}, fmt.Errorf("repository: AppendTurn: invalid sender %q", turn.Sender)
	}
	if _, err := domain.ParseIntent(string(turn.Intent)); err != nil {
		return domain.Turn{}, fmt.Errorf("repository: AppendTurn: %w", err)
	}

	id, err := c.nextID(ctx, turn.UserID)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("repository: AppendTurn: %w", err)
	}
	turn.ID = id
	turn.CreatedAt = c.now().UTC()

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                turnItem(turn),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return domain.Turn{}, fmt.Errorf("repository: AppendTurn: %w", err)
	}
	return turn, nil
}

// nextID atomically increments the user's sequence counter.
func (c *Client) nextID(ctx context.Context, userID int64) (int64, error) {
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: skSeq},
		},
		UpdateExpression: aws.String("ADD seq :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	if out == nil {
		return 0, errors.New("next id: empty update response")
	}
	seq, err := int64Attr(out.Attributes, "seq")
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	return seq, nil
}

// LastTurns returns up to n of the user's most recent turns, newest first.
func (c *Client) LastTurns(ctx context.Context, userID int64, n int) ([]domain.Turn, error) {
	if n <= 0 {
		return []domain.Turn{}, nil
	}
	out, err := c.api.Query(ctx, c.turnQuery(userID, false, int32(n), nil))
	if err != nil {
		return nil, fmt.Errorf("repository: LastTurns query: %w", err)
	}

	turns, err := itemsToTurns(out.Items)
	if err != nil {
		return nil, fmt.Errorf("repository: LastTurns unmarshal: %w", err)
	}
	sort.SliceStable(turns, func(i, j int) bool { return turns[j].Before(turns[i]) })
	if len(turns) > n {
		turns = turns[:n]
	}
	return turns, nil
}

// AllTurns returns the user's full turn log, oldest first.
func (c *Client) AllTurns(ctx context.Context, userID int64) ([]domain.Turn, error) {
	turns := []domain.Turn{}
	var startKey map[string]types.AttributeValue
	for {
		out, err := c.api.Query(ctx, c.turnQuery(userID, true, 0, startKey))
		if err != nil {
			return nil, fmt.Errorf("repository: AllTurns query: %w", err)
		}
		page, err := itemsToTurns(out.Items)
		if err != nil {
			return nil, fmt.Errorf("repository: AllTurns unmarshal: %w", err)
		}
		turns = append(turns, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	sort.SliceStable(turns, func(i, j int) bool { return turns[i].Before(turns[j]) })
	return turns, nil
}

func (c *Client) turnQuery(userID int64, forward bool, limit int32, startKey map[string]types.AttributeValue) *dynamodb.QueryInput {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: userPK(userID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixTurn},
		},
		ScanIndexForward:  aws.Bool(forward),
		ExclusiveStartKey: startKey,
	}
	if limit > 0 {
		in.Limit = aws.Int32(limit)
	}
	return in
}

func itemsToTurns(items []map[string]types.AttributeValue) ([]domain.Turn, error) {
	turns := make([]domain.Turn, 0, len(items))
	for _, item := range items {
		t, err := itemToTurn(item)
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// itemToTurn converts a DynamoDB attribute map to a Turn.
func itemToTurn(item map[string]types.AttributeValue) (domain.Turn, error) {
	id, err := int64Attr(item, "id")
	if err != nil {
		return domain.Turn{}, err
	}
	userID, err := int64Attr(item, "userId")
	if err != nil {
		return domain.Turn{}, err
	}
	sender, err := strAttr(item, "sender")
	if err != nil {
		return domain.Turn{}, err
	}
	intent, err := strAttr(item, "intent")
	if err != nil {
		return domain.Turn{}, err
	}
	content, _ := strAttr(item, "content") // allow empty
	rawCreated, err := strAttr(item, "createdAt")
	if err != nil {
		return domain.Turn{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawCreated)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("repository: parse attribute %q: %w", "createdAt", err)
	}

	return domain.Turn{
		ID:        id,
		UserID:    userID,
		Sender:    domain.Sender(sender),
		Intent:    domain.Intent(intent),
		Content:   content,
		CreatedAt: createdAt,
	}, nil
}

func turnItem(t domain.Turn) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: userPK(t.UserID)},
		"SK":        &types.AttributeValueMemberS{Value: turnSK(t.CreatedAt, t.ID)},
		"id":        &types.AttributeValueMemberN{Value: strconv.FormatInt(t.ID, 10)},
		"userId":    &types.AttributeValueMemberN{Value: strconv.FormatInt(t.UserID, 10)},
		"sender":    &types.AttributeValueMemberS{Value: string(t.Sender)},
		"intent":    &types.AttributeValueMemberS{Value: string(t.Intent)},
		"content":   &types.AttributeValueMemberS{Value: t.Content},
		"createdAt": &types.AttributeValueMemberS{Value: t.CreatedAt.UTC().Format(time.RFC3339Nano)},
	}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
