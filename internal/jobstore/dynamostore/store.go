// Package dynamostore persists job records in DynamoDB for cloud operation.
// Lookups by external operation id go through a global secondary index keyed
// on that attribute; the index is eventually consistent, so callers retry.
package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"medley/internal/jobs"
	"medley/internal/jobstore"
)

// Client is the DynamoDB surface the store depends on.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store adapts a DynamoDB table to the job store interface.
type Store struct {
	client         Client
	tableName      string
	operationIndex string
}

// New wraps a DynamoDB client. tableName is the job table; operationIndex is
// the GSI keyed on external_operation_id.
func New(client Client, tableName, operationIndex string) (*Store, error) {
	if strings.TrimSpace(tableName) == "" {
		return nil, jobs.Wrap(jobs.ErrValidation, "", "open job store", "table name not set", nil)
	}
	if strings.TrimSpace(operationIndex) == "" {
		return nil, jobs.Wrap(jobs.ErrValidation, "", "open job store", "operation index not set", nil)
	}
	return &Store{client: client, tableName: tableName, operationIndex: operationIndex}, nil
}

// Close is a no-op; the SDK client holds no resources that need release.
func (s *Store) Close() error { return nil }

// item is the DynamoDB representation of a job record. Timestamps are stored
// as RFC3339Nano strings so records stay readable in the console.
type item struct {
	JobID                  string          `dynamodbav:"job_id"`
	OwnerID                string          `dynamodbav:"owner_id,omitempty"`
	Status                 string          `dynamodbav:"status"`
	Filename               string          `dynamodbav:"filename,omitempty"`
	RawLocation            string          `dynamodbav:"raw_location,omitempty"`
	WorkingLocation        string          `dynamodbav:"working_location,omitempty"`
	ExternalOperationID    string          `dynamodbav:"external_operation_id,omitempty"`
	ContinuationToken      string          `dynamodbav:"continuation_token,omitempty"`
	ContentLocation        string          `dynamodbav:"content_location,omitempty"`
	AnalysisOutputLocation string          `dynamodbav:"analysis_output_location,omitempty"`
	ErrorInfo              *itemErrorInfo  `dynamodbav:"error_info,omitempty"`
	CreatedAt              string          `dynamodbav:"created_at"`
	UpdatedAt              string          `dynamodbav:"updated_at"`
	CompletedAt            string          `dynamodbav:"completed_at,omitempty"`
	FailedAt               string          `dynamodbav:"failed_at,omitempty"`
}

type itemErrorInfo struct {
	Kind      string `dynamodbav:"kind,omitempty"`
	Message   string `dynamodbav:"message"`
	Category  string `dynamodbav:"category"`
	Timestamp string `dynamodbav:"timestamp"`
}

func (s *Store) Create(ctx context.Context, record *jobs.Record) error {
	if record == nil || strings.TrimSpace(record.JobID) == "" {
		return jobs.Wrap(jobs.ErrValidation, "", "create job", "missing job id", nil)
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.Status == "" {
		record.Status = jobs.StatusInitializing
	}

	attrs, err := attributevalue.MarshalMap(toItem(record))
	if err != nil {
		return jobs.Wrap(jobs.ErrStore, "", "create job", record.JobID, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                attrs,
		ConditionExpression: aws.String("attribute_not_exists(job_id)"),
	})
	if err != nil {
		if isConditionFailure(err) {
			return jobs.Wrap(jobs.ErrValidation, "", "create job", "job id already exists: "+record.JobID, err)
		}
		return jobs.Wrap(jobs.ErrStore, "", "create job", record.JobID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, jobID string) (*jobs.Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       jobKey(jobID),
	})
	if err != nil {
		return nil, jobs.Wrap(jobs.ErrStore, "", "get job", jobID, err)
	}
	if len(out.Item) == 0 {
		return nil, jobs.Wrap(jobs.ErrNotFound, "", "get job", jobID, nil)
	}
	return unmarshalItem(out.Item)
}

func (s *Store) FindByOperationID(ctx context.Context, operationID string) (*jobs.Record, error) {
	if strings.TrimSpace(operationID) == "" {
		return nil, jobs.Wrap(jobs.ErrValidation, "", "find by operation", "empty operation id", nil)
	}
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(s.operationIndex),
		KeyConditionExpression: aws.String("external_operation_id = :op"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":op": &ddbtypes.AttributeValueMemberS{Value: operationID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, jobs.Wrap(jobs.ErrStore, "", "find by operation", operationID, err)
	}
	if len(out.Items) == 0 {
		return nil, jobs.Wrap(jobs.ErrNotFound, "", "find by operation", operationID, nil)
	}
	return unmarshalItem(out.Items[0])
}

// Apply patches a record with an attribute-level UpdateExpression so writers
// touch only the attributes they own. The write is conditioned on the status
// observed during the transition check.
func (s *Store) Apply(ctx context.Context, jobID string, patch jobs.Update) (*jobs.Record, error) {
	current, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := jobstore.CheckTransition(current.Status, patch); err != nil {
		return nil, err
	}

	names := map[string]string{"#updated_at": "updated_at"}
	values := map[string]ddbtypes.AttributeValue{
		":updated_at": &ddbtypes.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
	}
	sets := []string{"#updated_at = :updated_at"}
	appendSet := func(attr string, value ddbtypes.AttributeValue) {
		names["#"+attr] = attr
		values[":"+attr] = value
		sets = append(sets, fmt.Sprintf("#%s = :%s", attr, attr))
	}

	if patch.Status != nil {
		appendSet("status", &ddbtypes.AttributeValueMemberS{Value: string(*patch.Status)})
	}
	if patch.Filename != nil {
		appendSet("filename", &ddbtypes.AttributeValueMemberS{Value: *patch.Filename})
	}
	if patch.RawLocation != nil {
		appendSet("raw_location", &ddbtypes.AttributeValueMemberS{Value: *patch.RawLocation})
	}
	if patch.WorkingLocation != nil {
		appendSet("working_location", &ddbtypes.AttributeValueMemberS{Value: *patch.WorkingLocation})
	}
	if patch.ExternalOperationID != nil {
		appendSet("external_operation_id", &ddbtypes.AttributeValueMemberS{Value: *patch.ExternalOperationID})
	}
	if patch.ContinuationToken != nil {
		appendSet("continuation_token", &ddbtypes.AttributeValueMemberS{Value: *patch.ContinuationToken})
	}
	if patch.ContentLocation != nil {
		appendSet("content_location", &ddbtypes.AttributeValueMemberS{Value: *patch.ContentLocation})
	}
	if patch.AnalysisOutputLocation != nil {
		appendSet("analysis_output_location", &ddbtypes.AttributeValueMemberS{Value: *patch.AnalysisOutputLocation})
	}
	if patch.ErrorInfo != nil {
		errorAttr, marshalErr := attributevalue.Marshal(toItemErrorInfo(patch.ErrorInfo))
		if marshalErr != nil {
			return nil, jobs.Wrap(jobs.ErrStore, "", "apply update", jobID, marshalErr)
		}
		appendSet("error_info", errorAttr)
	}
	if patch.CompletedAt != nil {
		appendSet("completed_at", &ddbtypes.AttributeValueMemberS{Value: patch.CompletedAt.UTC().Format(time.RFC3339Nano)})
	}
	if patch.FailedAt != nil {
		appendSet("failed_at", &ddbtypes.AttributeValueMemberS{Value: patch.FailedAt.UTC().Format(time.RFC3339Nano)})
	}

	names["#status"] = "status"
	values[":current_status"] = &ddbtypes.AttributeValueMemberS{Value: string(current.Status)}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       jobKey(jobID),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String("attribute_exists(job_id) AND #status = :current_status"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              ddbtypes.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailure(err) {
			return nil, jobs.Wrap(jobs.ErrStore, "", "apply update", "concurrent modification of "+jobID, err)
		}
		return nil, jobs.Wrap(jobs.ErrStore, "", "apply update", jobID, err)
	}
	return unmarshalItem(out.Attributes)
}

func (s *Store) List(ctx context.Context, ownerID string) ([]*jobs.Record, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(s.tableName)}
	if ownerID != "" {
		input.FilterExpression = aws.String("owner_id = :owner")
		input.ExpressionAttributeValues = map[string]ddbtypes.AttributeValue{
			":owner": &ddbtypes.AttributeValueMemberS{Value: ownerID},
		}
	}
	records, err := s.scanAll(ctx, input, "list jobs")
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (s *Store) ListByStatus(ctx context.Context, statuses ...jobs.Status) ([]*jobs.Record, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	values := make(map[string]ddbtypes.AttributeValue, len(statuses))
	placeholders := make([]string, len(statuses))
	for i, status := range statuses {
		key := fmt.Sprintf(":s%d", i)
		values[key] = &ddbtypes.AttributeValueMemberS{Value: string(status)}
		placeholders[i] = key
	}
	input := &dynamodb.ScanInput{
		TableName:                 aws.String(s.tableName),
		FilterExpression:          aws.String("#status IN (" + strings.Join(placeholders, ", ") + ")"),
		ExpressionAttributeNames:  map[string]string{"#status": "status"},
		ExpressionAttributeValues: values,
	}
	records, err := s.scanAll(ctx, input, "list by status")
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (s *Store) scanAll(ctx context.Context, input *dynamodb.ScanInput, operation string) ([]*jobs.Record, error) {
	var records []*jobs.Record
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, jobs.Wrap(jobs.ErrStore, "", operation, "", err)
		}
		for _, attrs := range out.Items {
			record, unmarshalErr := unmarshalItem(attrs)
			if unmarshalErr != nil {
				return nil, unmarshalErr
			}
			records = append(records, record)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return records, nil
}

func jobKey(jobID string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"job_id": &ddbtypes.AttributeValueMemberS{Value: jobID},
	}
}

func toItem(record *jobs.Record) item {
	out := item{
		JobID:                  record.JobID,
		OwnerID:                record.OwnerID,
		Status:                 string(record.Status),
		Filename:               record.Filename,
		RawLocation:            record.RawLocation,
		WorkingLocation:        record.WorkingLocation,
		ExternalOperationID:    record.ExternalOperationID,
		ContinuationToken:      record.ContinuationToken,
		ContentLocation:        record.ContentLocation,
		AnalysisOutputLocation: record.AnalysisOutputLocation,
		ErrorInfo:              toItemErrorInfo(record.ErrorInfo),
		CreatedAt:              record.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:              record.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if record.CompletedAt != nil {
		out.CompletedAt = record.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	if record.FailedAt != nil {
		out.FailedAt = record.FailedAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func toItemErrorInfo(info *jobs.ErrorInfo) *itemErrorInfo {
	if info == nil {
		return nil
	}
	return &itemErrorInfo{
		Kind:      info.Kind,
		Message:   info.Message,
		Category:  info.Category,
		Timestamp: info.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func unmarshalItem(attrs map[string]ddbtypes.AttributeValue) (*jobs.Record, error) {
	var stored item
	if err := attributevalue.UnmarshalMap(attrs, &stored); err != nil {
		return nil, jobs.Wrap(jobs.ErrStore, "", "unmarshal job", "", err)
	}

	record := &jobs.Record{
		JobID:                  stored.JobID,
		OwnerID:                stored.OwnerID,
		Status:                 jobs.Status(stored.Status),
		Filename:               stored.Filename,
		RawLocation:            stored.RawLocation,
		WorkingLocation:        stored.WorkingLocation,
		ExternalOperationID:    stored.ExternalOperationID,
		ContinuationToken:      stored.ContinuationToken,
		ContentLocation:        stored.ContentLocation,
		AnalysisOutputLocation: stored.AnalysisOutputLocation,
	}
	if stored.ErrorInfo != nil {
		info := &jobs.ErrorInfo{
			Kind:     stored.ErrorInfo.Kind,
			Message:  stored.ErrorInfo.Message,
			Category: stored.ErrorInfo.Category,
		}
		if ts, err := time.Parse(time.RFC3339Nano, stored.ErrorInfo.Timestamp); err == nil {
			info.Timestamp = ts
		}
		record.ErrorInfo = info
	}
	if ts, err := time.Parse(time.RFC3339Nano, stored.CreatedAt); err == nil {
		record.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, stored.UpdatedAt); err == nil {
		record.UpdatedAt = ts
	}
	if stored.CompletedAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, stored.CompletedAt); err == nil {
			record.CompletedAt = &ts
		}
	}
	if stored.FailedAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, stored.FailedAt); err == nil {
			record.FailedAt = &ts
		}
	}
	return record, nil
}

func isConditionFailure(err error) bool {
	var conditionFailed *ddbtypes.ConditionalCheckFailedException
	return errors.As(err, &conditionFailed)
}
