package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/faxintake/constants"
	"github.com/joseph-ayodele/faxintake/internal/entity"
)

// BlobNameIndex is the global secondary index keyed on blobName.
const BlobNameIndex = "blobName-index"

// DynamoAPI is the subset of the DynamoDB client used by the repository.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// dynamoItem is the stored shape; extractedData is kept as a JSON string.
type dynamoItem struct {
	ID            string  `dynamodbav:"id"`
	BlobName      string  `dynamodbav:"blobName"`
	FileName      string  `dynamodbav:"fileName"`
	UploadedAt    string  `dynamodbav:"uploadedAt"`
	Status        string  `dynamodbav:"status"`
	ExtractedData string  `dynamodbav:"extractedData,omitempty"`
	ProcessedAt   string  `dynamodbav:"processedAt,omitempty"`
	ErrorMessage  *string `dynamodbav:"errorMessage,omitempty"`
}

func (it dynamoItem) record() (*entity.AuthorizationRecord, error) {
	uploaded, err := parseTime(it.UploadedAt)
	if err != nil {
		return nil, fmt.Errorf("parse uploadedAt: %w", err)
	}
	rec := &entity.AuthorizationRecord{
		ID:           it.ID,
		SourcePath:   it.BlobName,
		FileName:     it.FileName,
		UploadedAt:   uploaded,
		Status:       constants.AuthorizationStatus(it.Status),
		ErrorMessage: it.ErrorMessage,
	}
	if rec.ExtractedFields, err = decodeFields([]byte(it.ExtractedData)); err != nil {
		return nil, err
	}
	if it.ProcessedAt != "" {
		p, err := parseTime(it.ProcessedAt)
		if err != nil {
			return nil, fmt.Errorf("parse processedAt: %w", err)
		}
		rec.ProcessedAt = &p
	}
	return rec, nil
}

type dynamoRepo struct {
	db     DynamoAPI
	table  string
	logger *zap.Logger
	opts   options
}

func NewDynamoRepository(db DynamoAPI, table string, logger *zap.Logger, opts ...Option) AuthorizationRepository {
	return &dynamoRepo{db: db, table: table, logger: logger, opts: applyOptions(opts)}
}

func (r *dynamoRepo) Create(ctx context.Context, sourcePath, fileName string, uploadedAt time.Time) (string, error) {
	id := r.opts.newID()
	item, err := attributevalue.MarshalMap(dynamoItem{
		ID:         id,
		BlobName:   sourcePath,
		FileName:   fileName,
		UploadedAt: formatTime(uploadedAt),
		Status:     string(constants.StatusProcessing),
	})
	if err != nil {
		return "", fmt.Errorf("marshal authorization: %w", err)
	}
	_, err = r.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return "", fmt.Errorf("%w: id collision for %s", ErrConflict, sourcePath)
		}
		r.logger.Error("authorization.create.failed", zap.String("blob_name", sourcePath), zap.Error(err))
		return "", fmt.Errorf("put authorization: %w", err)
	}
	r.logger.Info("authorization.created", zap.String("id", id), zap.String("blob_name", sourcePath))
	return id, nil
}

func (r *dynamoRepo) Complete(ctx context.Context, id string, fields entity.ExtractedFields) error {
	data, err := encodeFields(fields)
	if err != nil {
		return err
	}
	err = r.terminal(ctx, id, "SET #s = :s, extractedData = :d, processedAt = :p REMOVE errorMessage",
		map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: string(constants.StatusCompleted)},
			":d": &types.AttributeValueMemberS{Value: string(data)},
		})
	if err != nil {
		return err
	}
	r.logger.Info("authorization.completed", zap.String("id", id))
	return nil
}

func (r *dynamoRepo) MarkFailed(ctx context.Context, id, message string) error {
	err := r.terminal(ctx, id, "SET #s = :s, errorMessage = :m, processedAt = :p REMOVE extractedData",
		map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: string(constants.StatusFailed)},
			":m": &types.AttributeValueMemberS{Value: message},
		})
	if err != nil {
		return err
	}
	r.logger.Warn("authorization.failed", zap.String("id", id), zap.String("error", message))
	return nil
}

// terminal applies update only while the record is still processing.
func (r *dynamoRepo) terminal(ctx context.Context, id, update string, values map[string]types.AttributeValue) error {
	values[":p"] = &types.AttributeValueMemberS{Value: formatTime(r.opts.now())}
	values[":processing"] = &types.AttributeValueMemberS{Value: string(constants.StatusProcessing)}
	_, err := r.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       idKey(id),
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String("attribute_exists(id) AND #s = :processing"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
	})
	if err == nil {
		return nil
	}
	if !isConditionFailed(err) {
		r.logger.Error("authorization.update.failed", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("update authorization: %w", err)
	}
	rec, gerr := r.GetByID(ctx, id)
	if gerr != nil {
		return gerr
	}
	return fmt.Errorf("%w: %s is %s", ErrTerminal, id, rec.Status)
}

func (r *dynamoRepo) GetByID(ctx context.Context, id string) (*entity.AuthorizationRecord, error) {
	out, err := r.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            idKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get authorization: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var it dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal authorization: %w", err)
	}
	return it.record()
}

func (r *dynamoRepo) ExistsBySourcePath(ctx context.Context, sourcePath string) (bool, error) {
	out, err := r.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		IndexName:              aws.String(BlobNameIndex),
		KeyConditionExpression: aws.String("blobName = :b"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":b": &types.AttributeValueMemberS{Value: sourcePath},
		},
		Select: types.SelectCount,
		Limit:  aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("query authorization by blob name: %w", err)
	}
	return out.Count > 0, nil
}

func (r *dynamoRepo) List(ctx context.Context, filter ListFilter) ([]*entity.AuthorizationRecord, error) {
	in := &dynamodb.ScanInput{TableName: aws.String(r.table)}
	if filter.Status != "" {
		in.FilterExpression = aws.String("#s = :s")
		in.ExpressionAttributeNames = map[string]string{"#s": "status"}
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: string(filter.Status)},
		}
	}
	recs, err := r.scanAll(ctx, in)
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].UploadedAt.Equal(recs[j].UploadedAt) {
			return recs[i].UploadedAt.After(recs[j].UploadedAt)
		}
		return recs[i].ID < recs[j].ID
	})
	off := max(filter.Offset, 0)
	if off >= len(recs) {
		return nil, nil
	}
	recs = recs[off:]
	if len(recs) > filter.limit() {
		recs = recs[:filter.limit()]
	}
	return recs, nil
}

func (r *dynamoRepo) ListStale(ctx context.Context, olderThan time.Time) ([]*entity.AuthorizationRecord, error) {
	recs, err := r.scanAll(ctx, &dynamodb.ScanInput{
		TableName:                aws.String(r.table),
		FilterExpression:         aws.String("#s = :s AND uploadedAt < :t"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: string(constants.StatusProcessing)},
			":t": &types.AttributeValueMemberS{Value: formatTime(olderThan)},
		},
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].UploadedAt.Before(recs[j].UploadedAt) })
	return recs, nil
}

func (r *dynamoRepo) scanAll(ctx context.Context, in *dynamodb.ScanInput) ([]*entity.AuthorizationRecord, error) {
	var out []*entity.AuthorizationRecord
	for {
		page, err := r.db.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("scan authorizations: %w", err)
		}
		var items []dynamoItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal authorizations: %w", err)
		}
		for _, it := range items {
			rec, err := it.record()
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		in.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
