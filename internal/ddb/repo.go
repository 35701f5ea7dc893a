// Package ddb stores document records in DynamoDB.
package ddb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/Essu-man/Minuty/internal/apperr"
	"github.com/Essu-man/Minuty/internal/db/models"
)

const metaSK = "META"

// attributeNames maps patch columns onto item attributes.
var attributeNames = map[string]string{
	"name":                  "name",
	"url":                   "url",
	"final_url":             "finalUrl",
	"status":                "status",
	"annotations":           "annotations",
	"signatures":            "signatures",
	"approved_by_signature": "approvedBySignature",
	"issued_by_signature":   "issuedBySignature",
	"approved_by":           "approvedBy",
	"issued_by":             "issuedBy",
	"approved_at":           "approvedAt",
	"issued_at":             "issuedAt",
	"updated_at":            "updatedAt",
}

// API is the part of the DynamoDB client the repo uses.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Repo wraps a DynamoDB client and table name for document operations.
type Repo struct {
	DB        API
	Table     string
	UserIndex string
	Now       func() time.Time
}

func (r *Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

// MakeKeys constructs the partition key (PK) and sort key (SK) for a document.
func MakeKeys(documentID string) (pk, sk string) {
	return fmt.Sprintf("DOC#%s", documentID), metaSK
}

func (r *Repo) key(id string) map[string]types.AttributeValue {
	pk, sk := MakeKeys(id)
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// Create inserts a new document record, ensuring no duplicate exists.
func (r *Repo) Create(ctx context.Context, doc *models.Document) error {
	now := r.now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return err
	}
	for k, v := range r.key(doc.ID) {
		item[k] = v
	}
	_, err = r.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &r.Table,
		Item:                item,
		ConditionExpression: awsStr("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return classify("create document", err)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (*models.Document, error) {
	out, err := r.DB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &r.Table,
		Key:            r.key(id),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, classify("get document", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("document %s: %w", id, apperr.ErrNotFound)
	}
	var doc models.Document
	if err := attributevalue.UnmarshalMap(out.Item, &doc); err != nil {
		return nil, apperr.Format("document record", err)
	}
	return &doc, nil
}

// ListByUser returns the owner's documents, newest first.
func (r *Repo) ListByUser(ctx context.Context, userID string) ([]models.Document, error) {
	docs := []models.Document{}
	var start map[string]types.AttributeValue
	for {
		out, err := r.DB.Query(ctx, &dynamodb.QueryInput{
			TableName:              &r.Table,
			IndexName:              awsStr(r.UserIndex),
			KeyConditionExpression: awsStr("userId = :u"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":u": &types.AttributeValueMemberS{Value: userID},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, classify("list documents", err)
		}
		var page []models.Document
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, apperr.Format("document record", err)
		}
		docs = append(docs, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	return docs, nil
}

// Update applies a partial update and returns the stored record.
func (r *Repo) Update(ctx context.Context, id string, patch models.DocumentPatch) (*models.Document, error) {
	cols, err := patch.Columns()
	if err != nil {
		return nil, err
	}
	cols["updated_at"] = r.now()

	expr, names, values, err := buildUpdate(cols)
	if err != nil {
		return nil, err
	}
	out, err := r.DB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &r.Table,
		Key:                       r.key(id),
		UpdateExpression:          awsStr(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       awsStr("attribute_exists(PK)"),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, classify("update document", err)
	}
	var doc models.Document
	if err := attributevalue.UnmarshalMap(out.Attributes, &doc); err != nil {
		return nil, apperr.Format("document record", err)
	}
	return &doc, nil
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	_, err := r.DB.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           &r.Table,
		Key:                 r.key(id),
		ConditionExpression: awsStr("attribute_exists(PK)"),
	})
	if err != nil {
		return classify("delete document", err)
	}
	return nil
}

// buildUpdate renders a SET expression with placeholder names, in a stable
// column order.
func buildUpdate(cols map[string]interface{}) (string, map[string]string, map[string]types.AttributeValue, error) {
	keys := make([]string, 0, len(cols))
	for k := range cols {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	names := make(map[string]string, len(keys))
	values := make(map[string]types.AttributeValue, len(keys))
	sets := make([]string, 0, len(keys))
	for i, col := range keys {
		attr, ok := attributeNames[col]
		if !ok {
			return "", nil, nil, fmt.Errorf("unknown column %q", col)
		}
		av, err := attributevalue.Marshal(cols[col])
		if err != nil {
			return "", nil, nil, err
		}
		n, v := fmt.Sprintf("#f%d", i), fmt.Sprintf(":v%d", i)
		names[n] = attr
		values[v] = av
		sets = append(sets, n+" = "+v)
	}
	return "SET " + strings.Join(sets, ", "), names, values, nil
}

func classify(op string, err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if op == "create document" {
			return fmt.Errorf("%s: %w: already exists", op, apperr.ErrInvalid)
		}
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	var rnf *types.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return apperr.New(apperr.KindConfiguration, "document table does not exist", err)
	}
	return apperr.Transient(op, err)
}

// awsStr is a helper to get a pointer to a string literal.
func awsStr(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
