package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the single-table design.
const (
	pkPrefix = "OWNER#"
	skJob    = "JOB#"
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore implements JobStore using AWS DynamoDB.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

// Compile-time interface check.
var _ JobStore = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

// TableName returns the table this store writes to.
func (s *DynamoStore) TableName() string { return s.tableName }

// ownerPK returns the partition key for an owner.
func ownerPK(identity string) string {
	return pkPrefix + identity
}

// expiresAt returns the Unix epoch timestamp for record expiration (now + JobTTL).
func (s *DynamoStore) expiresAt() int64 {
	return s.now().Add(JobTTL).Unix()
}

func (s *DynamoStore) PutJob(ctx context.Context, rec *JobRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", rec.ID, err)
	}

	pk, sk := ownerPK(rec.Identity), skJob+rec.ID
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(s.expiresAt(), 10)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}

	log.Debug().
		Str("identity", rec.Identity).
		Str("job", rec.ID).
		Str("state", rec.State).
		Msg("Job record persisted")
	return nil
}

func (s *DynamoStore) GetJob(ctx context.Context, identity, jobID string) (*JobRecord, error) {
	pk, sk := ownerPK(identity), skJob+jobID
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, sk, err)
	}
	if result.Item == nil {
		log.Debug().Str("identity", identity).Str("job", jobID).Bool("found", false).Msg("GetJob: job not found")
		return nil, nil
	}

	var rec JobRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, sk, err)
	}
	rec.ID = jobID
	rec.Identity = identity
	return &rec, nil
}

func (s *DynamoStore) ListJobs(ctx context.Context, identity string, limit int) ([]*JobRecord, error) {
	pk := ownerPK(identity)
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :skPrefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":       &types.AttributeValueMemberS{Value: pk},
			":skPrefix": &types.AttributeValueMemberS{Value: skJob},
		},
	}

	var records []*JobRecord
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query PK=%s: %w", pk, err)
		}
		for _, item := range out.Items {
			var rec JobRecord
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, fmt.Errorf("unmarshal job under PK=%s: %w", pk, err)
			}
			if sk, ok := item["SK"].(*types.AttributeValueMemberS); ok {
				rec.ID = strings.TrimPrefix(sk.Value, skJob)
			}
			rec.Identity = identity
			records = append(records, &rec)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	return newestFirst(records, limit), nil
}

// newestFirst sorts records by StartedAt descending and truncates to limit.
func newestFirst(records []*JobRecord, limit int) []*JobRecord {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt > records[j].StartedAt
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}
