package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"triage-client/internal/domain"
)

const (
	skPrefixEntry = "ENTRY#"
	skVerdict     = "VERDICT#"
	ttlDuration   = 30 * 24 * time.Hour // 30-day TTL

	// maxTransactItems is the DynamoDB limit per TransactWriteItems call.
	maxTransactItems = 100
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
type dynamodbAPI interface {
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client archives concluded triage sessions in a DynamoDB table. The archive
// is write-only; sessions are never restored from it.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

// sessionPK returns the partition key for a session.
func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// entrySK returns a sort key that orders entries by sequence number.
func entrySK(seq int) string {
	return fmt.Sprintf("%s%04d", skPrefixEntry, seq)
}

func (c *Client) ttlValue() int64 {
	return c.now().Add(ttlDuration).Unix()
}

// ArchiveSession writes every transcript entry and the verdict of a concluded
// session. The verdict item is written in the last transaction so its presence
// marks a complete archive.
func (c *Client) ArchiveSession(ctx context.Context, sessionID string, transcript []domain.TranscriptEntry, verdict domain.Verdict) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("repository: ArchiveSession: session id is required")
	}

	entries := NewArchivedEntries(sessionID, transcript, c.ttlValue())
	meta := c.NewArchivedVerdict(sessionID, len(transcript), verdict)

	items := make([]types.TransactWriteItem, 0, len(entries)+1)
	for _, e := range entries {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(c.tableName),
				Item:      entryItem(e),
			},
		})
	}
	items = append(items, types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(c.tableName),
			Item:                verdictItem(meta),
			ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
		},
	})

	for start := 0; start < len(items); start += maxTransactItems {
		end := start + maxTransactItems
		if end > len(items) {
			end = len(items)
		}
		_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: items[start:end],
		})
		if err != nil {
			return fmt.Errorf("repository: ArchiveSession %q: %w", sessionID, err)
		}
	}
	return nil
}

// NewArchivedEntries converts a transcript into archive records, numbered from
// one in transcript order.
func NewArchivedEntries(sessionID string, transcript []domain.TranscriptEntry, ttl int64) []domain.ArchivedEntry {
	out := make([]domain.ArchivedEntry, 0, len(transcript))
	for i, e := range transcript {
		seq := i + 1
		out = append(out, domain.ArchivedEntry{
			PK:        sessionPK(sessionID),
			SK:        entrySK(seq),
			SessionID: sessionID,
			Seq:       seq,
			Role:      e.Role,
			Text:      e.Text,
			TTL:       ttl,
		})
	}
	return out
}

// NewArchivedVerdict constructs the verdict record for a session.
func (c *Client) NewArchivedVerdict(sessionID string, turns int, v domain.Verdict) domain.ArchivedVerdict {
	return domain.ArchivedVerdict{
		PK:          sessionPK(sessionID),
		SK:          skVerdict,
		SessionID:   sessionID,
		ConcludedAt: c.now().UTC().Format(time.RFC3339),
		Turns:       turns,
		Verdict:     v,
		TTL:         c.ttlValue(),
	}
}

func entryItem(e domain.ArchivedEntry) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: e.PK},
		"SK":        &types.AttributeValueMemberS{Value: e.SK},
		"sessionId": &types.AttributeValueMemberS{Value: e.SessionID},
		"seq":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", e.Seq)},
		"role":      &types.AttributeValueMemberS{Value: string(e.Role)},
		"text":      &types.AttributeValueMemberS{Value: e.Text},
		"ttl":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", e.TTL)},
	}
}

func verdictItem(v domain.ArchivedVerdict) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: v.PK},
		"SK":          &types.AttributeValueMemberS{Value: v.SK},
		"sessionId":   &types.AttributeValueMemberS{Value: v.SessionID},
		"concludedAt": &types.AttributeValueMemberS{Value: v.ConcludedAt},
		"turns":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", v.Turns)},
		"level":       &types.AttributeValueMemberS{Value: string(v.Verdict.UrgencyLevel)},
		"confidence":  &types.AttributeValueMemberS{Value: string(v.Verdict.Confidence)},
		"whatToDo":    stringList(v.Verdict.RecommendedActions),
		"watchFor":    stringList(v.Verdict.WarningSigns),
		"ttl":         &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", v.TTL)},
	}
}

func stringList(values []string) *types.AttributeValueMemberL {
	out := make([]types.AttributeValue, 0, len(values))
	for _, v := range values {
		out = append(out, &types.AttributeValueMemberS{Value: v})
	}
	return &types.AttributeValueMemberL{Value: out}
}
