package account

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DefaultDynamoTable is the table used by earlier deployments of the service.
const DefaultDynamoTable = "cancellation_app_users"

// Attribute names of the DynamoDB item. They match the existing table layout so
// records written by earlier deployments stay readable.
const (
	dynAttrID          = "_id"
	dynAttrEmail       = "email"
	dynAttrPassword    = "password"
	dynAttrRole        = "role"
	dynAttrActiveToken = "activeToken"
	dynAttrCreatedAt   = "createdAt"
	dynAttrName        = "name"

	// dynAttrEmailLower holds the normalized email. Items written by earlier
	// deployments lack it and keep their email exactly as it was submitted.
	dynAttrEmailLower = "emailLower"
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoConfig describes how to reach DynamoDB.
// Empty AccessKeyID falls back to the default AWS credential chain.
type DynamoConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

var loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

// NewDynamoClient builds a DynamoDB client from cfg.
func NewDynamoClient(ctx context.Context, cfg DynamoConfig) (*dynamodb.Client, error) {
	opts := make([]func(*awsconfig.LoadOptions) error, 0, 2)
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("account: aws config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// DynamoStore implements Store over a DynamoDB table keyed by "_id".
//
// Email lookups are paginated Scans with a filter expression and match case
// insensitively, including items that predate the emailLower attribute. The
// table has no uniqueness constraint on email, so concurrent registrations with
// the same email can both succeed; callers pre-check with GetByEmail.
type DynamoStore struct {
	api   DynamoAPI
	table string
}

// NewDynamoStore constructs a DynamoStore. An empty table uses DefaultDynamoTable.
func NewDynamoStore(api DynamoAPI, table string) (*DynamoStore, error) {
	if api == nil {
		return nil, fmt.Errorf("account: nil dynamodb client")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		table = DefaultDynamoTable
	}
	return &DynamoStore{api: api, table: table}, nil
}

func dynKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{dynAttrID: &types.AttributeValueMemberS{Value: id}}
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// GetByID loads an account with a strongly consistent read.
func (s *DynamoStore) GetByID(ctx context.Context, id string) (Account, error) {
	const op = "account.DynamoStore.GetByID"
	if strings.TrimSpace(id) == "" {
		return Account{}, NotFoundError{Op: op}
	}

	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            dynKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Account{}, backendError(op, err)
	}
	if len(out.Item) == 0 {
		return Account{}, NotFoundError{Op: op, ID: id}
	}

	a, err := dynDecode(out.Item)
	if err != nil {
		return Account{}, backendError(op, err)
	}
	return a, nil
}

// GetByEmail scans the table for the first item whose email matches case
// insensitively. Items without emailLower are compared on their stored email.
func (s *DynamoStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	const op = "account.DynamoStore.GetByEmail"

	want := NormalizeEmail(email)
	if want == "" {
		return Account{}, NotFoundError{Op: op}
	}

	in := &dynamodb.ScanInput{
		TableName:        aws.String(s.table),
		FilterExpression: aws.String("#lower = :lower OR attribute_not_exists(#lower)"),
		ExpressionAttributeNames: map[string]string{
			"#lower": dynAttrEmailLower,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lower": &types.AttributeValueMemberS{Value: want},
		},
		ConsistentRead: aws.Bool(true),
	}

	for {
		out, err := s.api.Scan(ctx, in)
		if err != nil {
			return Account{}, backendError(op, err)
		}
		for _, item := range out.Items {
			stored, _ := dynString(item, dynAttrEmail)
			if NormalizeEmail(stored) != want {
				continue
			}
			a, err := dynDecode(item)
			if err != nil {
				return Account{}, backendError(op, err)
			}
			return a, nil
		}
		if len(out.LastEvaluatedKey) == 0 {
			return Account{}, NotFoundError{Op: op}
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// Insert puts the item guarded by attribute_not_exists(_id).
func (s *DynamoStore) Insert(ctx context.Context, a Account) (Account, error) {
	const op = "account.DynamoStore.Insert"

	if err := validateNew(op, a); err != nil {
		return Account{}, err
	}
	a = a.clone()
	a.Email = NormalizeEmail(a.Email)
	a.CreatedAt = a.CreatedAt.UTC()

	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.table),
		Item:                     dynEncode(a),
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": dynAttrID},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return Account{}, ConflictError{Op: op, Field: "id"}
		}
		return Account{}, backendError(op, err)
	}
	return a, nil
}

// SetActiveCredential runs SET activeToken = :token on an existing item.
func (s *DynamoStore) SetActiveCredential(ctx context.Context, id, credential string) error {
	const op = "account.DynamoStore.SetActiveCredential"
	if credential == "" {
		return invalid(op, "empty credential")
	}

	_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 dynKey(id),
		UpdateExpression:    aws.String("SET #tok = :token"),
		ConditionExpression: aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#tok": dynAttrActiveToken,
			"#id":  dynAttrID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":token": &types.AttributeValueMemberS{Value: credential},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return NotFoundError{Op: op, ID: id}
		}
		return backendError(op, err)
	}
	return nil
}

// ClearActiveCredential runs REMOVE activeToken. The existence guard keeps an
// update on a missing key from creating a stub item.
func (s *DynamoStore) ClearActiveCredential(ctx context.Context, id string) error {
	const op = "account.DynamoStore.ClearActiveCredential"

	_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 dynKey(id),
		UpdateExpression:    aws.String("REMOVE #tok"),
		ConditionExpression: aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#tok": dynAttrActiveToken,
			"#id":  dynAttrID,
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return nil
		}
		return backendError(op, err)
	}
	return nil
}

// DeleteByIDAndEmail deletes the item when its email matches case insensitively.
// The delete is guarded by the email value read, so a concurrent change of the
// item makes it report false.
func (s *DynamoStore) DeleteByIDAndEmail(ctx context.Context, id, email string) (bool, error) {
	const op = "account.DynamoStore.DeleteByIDAndEmail"

	if strings.TrimSpace(id) == "" {
		return false, nil
	}
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            dynKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, backendError(op, err)
	}
	stored, ok := dynString(out.Item, dynAttrEmail)
	if !ok || NormalizeEmail(stored) != NormalizeEmail(email) {
		return false, nil
	}

	_, err = s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(s.table),
		Key:                      dynKey(id),
		ConditionExpression:      aws.String("#email = :email"),
		ExpressionAttributeNames: map[string]string{"#email": dynAttrEmail},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":email": &types.AttributeValueMemberS{Value: stored},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return false, nil
		}
		return false, backendError(op, err)
	}
	return true, nil
}

// BackfillEmailKeys sets emailLower on items written before the attribute
// existed and returns how many it updated. An item whose email changes
// underneath it is skipped.
func (s *DynamoStore) BackfillEmailKeys(ctx context.Context) (int, error) {
	const op = "account.DynamoStore.BackfillEmailKeys"

	in := &dynamodb.ScanInput{
		TableName:                aws.String(s.table),
		FilterExpression:         aws.String("attribute_not_exists(#lower)"),
		ExpressionAttributeNames: map[string]string{"#lower": dynAttrEmailLower},
	}

	updated := 0
	for {
		page, err := s.api.Scan(ctx, in)
		if err != nil {
			return updated, backendError(op, err)
		}
		for _, item := range page.Items {
			id, _ := dynString(item, dynAttrID)
			stored, ok := dynString(item, dynAttrEmail)
			if id == "" || !ok {
				continue
			}
			_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
				TableName:           aws.String(s.table),
				Key:                 dynKey(id),
				UpdateExpression:    aws.String("SET #lower = :lower"),
				ConditionExpression: aws.String("#email = :email"),
				ExpressionAttributeNames: map[string]string{
					"#lower": dynAttrEmailLower,
					"#email": dynAttrEmail,
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":lower": &types.AttributeValueMemberS{Value: NormalizeEmail(stored)},
					":email": &types.AttributeValueMemberS{Value: stored},
				},
			})
			if err != nil {
				if isConditionalCheckFailed(err) {
					continue
				}
				return updated, backendError(op, err)
			}
			updated++
		}
		if len(page.LastEvaluatedKey) == 0 {
			return updated, nil
		}
		in.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

// ListNonAdmin scans for items whose role is not admin.
func (s *DynamoStore) ListNonAdmin(ctx context.Context) ([]Account, error) {
	const op = "account.DynamoStore.ListNonAdmin"

	in := &dynamodb.ScanInput{
		TableName:                aws.String(s.table),
		FilterExpression:         aws.String("#r <> :admin"),
		ExpressionAttributeNames: map[string]string{"#r": dynAttrRole},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":admin": &types.AttributeValueMemberS{Value: string(RoleAdmin)},
		},
	}

	out := make([]Account, 0, 16)
	for {
		page, err := s.api.Scan(ctx, in)
		if err != nil {
			return nil, backendError(op, err)
		}
		for _, item := range page.Items {
			a, err := dynDecode(item)
			if err != nil {
				return nil, backendError(op, err)
			}
			out = append(out, a)
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = page.LastEvaluatedKey
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Ping describes the table.
func (s *DynamoStore) Ping(ctx context.Context) error {
	if _, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}); err != nil {
		return backendError("account.DynamoStore.Ping", err)
	}
	return nil
}

func dynEncode(a Account) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		dynAttrID:         &types.AttributeValueMemberS{Value: a.ID},
		dynAttrEmail:      &types.AttributeValueMemberS{Value: a.Email},
		dynAttrEmailLower: &types.AttributeValueMemberS{Value: NormalizeEmail(a.Email)},
		dynAttrPassword:   &types.AttributeValueMemberS{Value: a.PasswordHash},
		dynAttrRole:       &types.AttributeValueMemberS{Value: string(a.Role)},
		dynAttrCreatedAt:  &types.AttributeValueMemberS{Value: a.CreatedAt.Format(time.RFC3339Nano)},
	}
	if a.Name != nil {
		item[dynAttrName] = &types.AttributeValueMemberS{Value: *a.Name}
	}
	if a.ActiveCredential != nil {
		item[dynAttrActiveToken] = &types.AttributeValueMemberS{Value: *a.ActiveCredential}
	} else {
		item[dynAttrActiveToken] = &types.AttributeValueMemberNULL{Value: true}
	}
	return item
}

func dynDecode(item map[string]types.AttributeValue) (Account, error) {
	var a Account

	id, ok := dynString(item, dynAttrID)
	if !ok || id == "" {
		return Account{}, fmt.Errorf("item without %s", dynAttrID)
	}
	a.ID = id
	a.Email, _ = dynString(item, dynAttrEmail)
	a.PasswordHash, _ = dynString(item, dynAttrPassword)

	roleRaw, _ := dynString(item, dynAttrRole)
	role, ok := ParseRole(roleRaw)
	if !ok {
		return Account{}, fmt.Errorf("item %s has unknown role %q", id, roleRaw)
	}
	a.Role = role

	if name, ok := dynString(item, dynAttrName); ok {
		a.Name = &name
	}
	if tok, ok := dynString(item, dynAttrActiveToken); ok && tok != "" {
		a.ActiveCredential = &tok
	}
	if created, ok := dynString(item, dynAttrCreatedAt); ok {
		t, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return Account{}, fmt.Errorf("item %s has bad %s: %w", id, dynAttrCreatedAt, err)
		}
		a.CreatedAt = t.UTC()
	}
	return a, nil
}

// dynString returns the string value of attr; NULL and missing attributes report false.
func dynString(item map[string]types.AttributeValue, attr string) (string, bool) {
	v, ok := item[attr]
	if !ok {
		return "", false
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return s.Value, true
}
