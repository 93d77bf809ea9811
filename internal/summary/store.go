package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/user/voiceline/internal/retry"
	"github.com/user/voiceline/internal/types"
)

// s3API is the minimal S3 surface required by Store.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// dynamodbAPI is the minimal DynamoDB surface required by Store.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Store persists a generated summary: the JSON document goes to the object
// store, a metadata row pointing at it goes to the summaries table.
type Store struct {
	s3        s3API
	bucket    string
	db        dynamodbAPI
	tableName string
	retry     *retry.Policy
	now       func() time.Time
}

// NewStore creates a summary Store.
func NewStore(s3Client s3API, bucket string, db dynamodbAPI, tableName string) (*Store, error) {
	if s3Client == nil || db == nil {
		return nil, errors.New("summary: store clients must not be nil")
	}
	if strings.TrimSpace(bucket) == "" || strings.TrimSpace(tableName) == "" {
		return nil, errors.New("summary: bucket and table name must not be empty")
	}
	return &Store{
		s3:        s3Client,
		bucket:    bucket,
		db:        db,
		tableName: tableName,
		retry:     retry.DefaultPolicy(),
		now:       time.Now,
	}, nil
}

// objectKey is the bucket key for a call's summary document.
func objectKey(agentID types.AgentID, callID types.CallID) string {
	return fmt.Sprintf("summary_%s_%s.json", agentID, callID)
}

// Save uploads the summary document and records its metadata. Returns the
// object URL of the uploaded document.
func (s *Store) Save(ctx context.Context, agentID types.AgentID, callID types.CallID, result *types.CallSummary) (string, error) {
	doc, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("summary: marshal result: %w", err)
	}

	key := objectKey(agentID, callID)
	err = s.retry.Execute(func() error {
		_, err := s.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(doc),
			ContentType: aws.String("application/json"),
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("summary: upload %s: %w", key, err)
	}

	url := fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)

	err = s.retry.Execute(func() error {
		_, err := s.db.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.tableName),
			Item: map[string]ddbtypes.AttributeValue{
				"agentId":    &ddbtypes.AttributeValueMemberS{Value: string(agentID)},
				"callId":     &ddbtypes.AttributeValueMemberS{Value: string(callID)},
				"summaryUrl": &ddbtypes.AttributeValueMemberS{Value: url},
				"createdAt":  &ddbtypes.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339)},
			},
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("summary: record metadata for %s: %w", key, err)
	}
	return url, nil
}
