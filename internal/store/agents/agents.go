package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/user/voiceline/internal/types"
)

const (
	pkPrefixAgent = "AGENT#"
	skProfile     = "PROFILE#"
	skPrefixKB    = "KB#"
)

// dynamodbAPI is the minimal DynamoDB surface required by Store.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Store reads per-agent configuration and knowledge-base entries from one
// DynamoDB table: the PROFILE# item holds the agent configuration, KB# items
// hold knowledge entries.
type Store struct {
	api       dynamodbAPI
	tableName string
}

// New creates an agent Store over the given table.
func New(api dynamodbAPI, tableName string) (*Store, error) {
	if api == nil {
		return nil, errors.New("agents: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("agents: table name must not be empty")
	}
	return &Store{api: api, tableName: tableName}, nil
}

func agentPK(id types.AgentID) string {
	return pkPrefixAgent + string(id)
}

// GetAgent fetches the configuration for one agent. A missing agent is
// (nil, false, nil).
func (s *Store) GetAgent(ctx context.Context, id types.AgentID) (*types.AgentConfig, bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: agentPK(id)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: skProfile},
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("agents: GetAgent: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, false, nil
	}

	cfg := &types.AgentConfig{
		Voice:              strAttr(out.Item, "voice"),
		CustomInstructions: strAttr(out.Item, "custom_instructions"),
		GreetingMessage:    strAttr(out.Item, "greeting_message"),
		Gender:             strAttr(out.Item, "gender"),
	}
	return cfg, true, nil
}

// ListKnowledge queries all KB# items for the agent in insertion order.
func (s *Store) ListKnowledge(ctx context.Context, id types.AgentID) ([]types.KnowledgeEntry, error) {
	out, err := s.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: agentPK(id)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: skPrefixKB},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("agents: ListKnowledge: %w", err)
	}

	entries := make([]types.KnowledgeEntry, 0, len(out.Items))
	for _, item := range out.Items {
		if content := strAttr(item, "content"); content != "" {
			entries = append(entries, types.KnowledgeEntry{Content: content})
		}
	}
	return entries, nil
}

func strAttr(item map[string]ddbtypes.AttributeValue, name string) string {
	if attr, ok := item[name].(*ddbtypes.AttributeValueMemberS); ok {
		return attr.Value
	}
	return ""
}
