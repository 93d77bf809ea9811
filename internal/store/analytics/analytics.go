package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/user/voiceline/internal/retry"
	"github.com/user/voiceline/internal/types"
)

// dynamodbAPI is the minimal DynamoDB surface required by Store.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Store persists finished session records for call analytics. Writes are
// retried on transient failures; callers treat any final error as
// best-effort and only log it.
type Store struct {
	api       dynamodbAPI
	tableName string
	retry     *retry.Policy
}

// New creates an analytics Store over the given table.
func New(api dynamodbAPI, tableName string) (*Store, error) {
	if api == nil {
		return nil, errors.New("analytics: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("analytics: table name must not be empty")
	}
	return &Store{api: api, tableName: tableName, retry: retry.DefaultPolicy()}, nil
}

// Put writes the full session record, keyed by session ID. The transcript
// sequences are stored as one JSON document alongside the queryable scalar
// attributes.
func (s *Store) Put(ctx context.Context, record *types.SessionRecord) error {
	if record == nil {
		return errors.New("analytics: record must not be nil")
	}

	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("analytics: marshal record: %w", err)
	}

	item := map[string]ddbtypes.AttributeValue{
		"session_id":            &ddbtypes.AttributeValueMemberS{Value: string(record.SessionID)},
		"start_time_utc":        &ddbtypes.AttributeValueMemberS{Value: record.StartTime.UTC().Format(time.RFC3339Nano)},
		"language":              &ddbtypes.AttributeValueMemberS{Value: record.Language},
		"total_user_messages":   &ddbtypes.AttributeValueMemberN{Value: strconv.Itoa(record.TotalUserMessages)},
		"total_agent_responses": &ddbtypes.AttributeValueMemberN{Value: strconv.Itoa(record.TotalAgentResponses)},
		"record":                &ddbtypes.AttributeValueMemberS{Value: string(doc)},
	}
	if record.AgentID != "" {
		item["agent_id"] = &ddbtypes.AttributeValueMemberS{Value: string(record.AgentID)}
	}
	if record.CallID != "" {
		item["call_id"] = &ddbtypes.AttributeValueMemberS{Value: string(record.CallID)}
	}
	if record.EndTime != nil {
		item["end_time_utc"] = &ddbtypes.AttributeValueMemberS{Value: record.EndTime.UTC().Format(time.RFC3339Nano)}
	}
	if record.DurationSeconds != nil {
		item["duration_seconds"] = &ddbtypes.AttributeValueMemberN{
			Value: strconv.FormatFloat(*record.DurationSeconds, 'f', -1, 64),
		}
	}

	err = s.retry.Execute(func() error {
		_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.tableName),
			Item:      item,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("analytics: put %s: %w", record.SessionID, err)
	}
	return nil
}
