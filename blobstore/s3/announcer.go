package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/stratum/blob"
)

// ErrConcurrentAnnouncement is returned when another producer announced
// between reading the log head and appending to it.
var ErrConcurrentAnnouncement = errors.New("s3: concurrent announcement")

// DDBClient is the subset of the DynamoDB API used by DynamoAnnouncer.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Announcement is an entry of the announcement log.
type Announcement struct {
	Seq     int64
	Version int64
}

// DynamoAnnouncer keeps an append-only announcement log per namespace.
// Every Announce appends an item with the next sequence number under the
// condition that it does not exist yet, so concurrent producers cannot
// overwrite each other. The announced version is the one in the item with
// the highest sequence number.
type DynamoAnnouncer struct {
	client    DDBClient
	table     string
	namespace string
}

// NewDynamoAnnouncer returns an announcer writing to table. namespace
// separates datasets sharing the table, e.g. "s3://bucket/movies".
func NewDynamoAnnouncer(client DDBClient, table, namespace string) *DynamoAnnouncer {
	return &DynamoAnnouncer{client: client, table: table, namespace: namespace}
}

// Announce appends version to the log. It fails with
// ErrConcurrentAnnouncement when it loses a race; callers retry.
func (a *DynamoAnnouncer) Announce(ctx context.Context, version int64) error {
	if version == blob.VersionNone || version == blob.VersionLatest {
		return fmt.Errorf("s3: cannot announce %s", blob.FormatVersion(version))
	}
	head, err := a.head(ctx)
	if err != nil {
		return err
	}
	seq := head.Seq + 1
	_, err = a.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.table),
		Item: map[string]types.AttributeValue{
			"namespace": &types.AttributeValueMemberS{Value: a.namespace},
			"seq":       &types.AttributeValueMemberN{Value: strconv.FormatInt(seq, 10)},
			"version":   &types.AttributeValueMemberN{Value: strconv.FormatInt(version, 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(seq)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("%w: seq %d", ErrConcurrentAnnouncement, seq)
		}
		return fmt.Errorf("s3: announce version %d: %w", version, err)
	}
	return nil
}

// Latest returns the announced version, or blob.VersionNone before the
// first announcement.
func (a *DynamoAnnouncer) Latest(ctx context.Context) (int64, error) {
	head, err := a.head(ctx)
	if err != nil {
		return blob.VersionNone, err
	}
	if head.Seq == 0 {
		return blob.VersionNone, nil
	}
	return head.Version, nil
}

// History returns up to limit announcements, newest first.
func (a *DynamoAnnouncer) History(ctx context.Context, limit int32) ([]Announcement, error) {
	resp, err := a.client.Query(ctx, a.query(limit))
	if err != nil {
		return nil, fmt.Errorf("s3: query announcements: %w", err)
	}
	out := make([]Announcement, 0, len(resp.Items))
	for _, item := range resp.Items {
		ann, err := parseAnnouncement(item)
		if err != nil {
			return nil, err
		}
		out = append(out, ann)
	}
	return out, nil
}

func (a *DynamoAnnouncer) head(ctx context.Context) (Announcement, error) {
	history, err := a.History(ctx, 1)
	if err != nil || len(history) == 0 {
		return Announcement{}, err
	}
	return history[0], nil
}

func (a *DynamoAnnouncer) query(limit int32) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:              aws.String(a.table),
		KeyConditionExpression: aws.String("#ns = :ns"),
		ExpressionAttributeNames: map[string]string{
			"#ns": "namespace",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ns": &types.AttributeValueMemberS{Value: a.namespace},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(limit),
		ConsistentRead:   aws.Bool(true),
	}
}

func parseAnnouncement(item map[string]types.AttributeValue) (Announcement, error) {
	seq, err := numberAttr(item, "seq")
	if err != nil {
		return Announcement{}, err
	}
	version, err := numberAttr(item, "version")
	if err != nil {
		return Announcement{}, err
	}
	return Announcement{Seq: seq, Version: version}, nil
}

func numberAttr(item map[string]types.AttributeValue, name string) (int64, error) {
	attr, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("s3: announcement item has no numeric %q attribute", name)
	}
	v, err := strconv.ParseInt(attr.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("s3: announcement attribute %q: %w", name, err)
	}
	return v, nil
}
