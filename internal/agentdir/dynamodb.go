package agentdir

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
	"github.com/stagecall/voicedemo/internal/types"
)

// DynamoDBStore implements Store using AWS DynamoDB
type DynamoDBStore struct {
	client *dynamodb.Client
	config DynamoConfig
	logger zerolog.Logger
}

// NewDynamoDBStore creates a new DynamoDB-backed agent directory
func NewDynamoDBStore(ctx context.Context, cfg DynamoConfig, logger zerolog.Logger) (*DynamoDBStore, error) {
	var client *dynamodb.Client

	if cfg.Mode == DynamoModeLocal {
		// For local mode, build the client directly without LoadDefaultConfig.
		// LoadDefaultConfig probes the EC2 IMDS endpoint which hangs when
		// static credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	store := &DynamoDBStore{
		client: client,
		config: cfg,
		logger: logger.With().Str("component", "agent_directory").Logger(),
	}

	// Create the table in local mode
	if cfg.Mode == DynamoModeLocal {
		if err := CreateTableIfNotExists(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.Region).
		Str("table", cfg.AgentsTable).
		Msg("DynamoDB agent directory initialized")

	return store, nil
}

func (s *DynamoDBStore) GetAgent(ctx context.Context, agentID string) (types.AgentRecord, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.AgentsTable),
		Key: map[string]dbtypes.AttributeValue{
			"AgentID": &dbtypes.AttributeValueMemberS{Value: agentID},
		},
	})
	if err != nil {
		return types.AgentRecord{}, fmt.Errorf("failed to get agent: %w", err)
	}
	if result.Item == nil {
		return types.AgentRecord{}, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}

	var record types.AgentRecord
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return types.AgentRecord{}, fmt.Errorf("failed to unmarshal agent record: %w", err)
	}
	return record, nil
}

func (s *DynamoDBStore) PutAgent(ctx context.Context, record types.AgentRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal agent record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.AgentsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save agent record: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) ListAgents(ctx context.Context) ([]types.AgentRecord, error) {
	result, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.config.AgentsTable),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan agents: %w", err)
	}

	var records []types.AgentRecord
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent records: %w", err)
	}
	return records, nil
}

func (s *DynamoDBStore) ListCallable(ctx context.Context) ([]types.AgentRecord, error) {
	// Agents without a complete vendor configuration are filtered server-side
	filter := expression.Name("PublicKey").NotEqual(expression.Value("")).
		And(expression.Name("RemoteAgentID").NotEqual(expression.Value("")))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build filter expression: %w", err)
	}

	result, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:                 aws.String(s.config.AgentsTable),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan callable agents: %w", err)
	}

	var records []types.AgentRecord
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent records: %w", err)
	}
	return records, nil
}
