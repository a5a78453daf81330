// Package history records finished searches in a DynamoDB table.
package history

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/storesearch"
)

// SortKey is the sk value shared by every history item.
const SortKey = "search"

// maxNames bounds how many result names an entry keeps.
const maxNames = 10

// Entry is one finished search as stored in the table.
type Entry struct {
	ID          string    `dynamodbav:"pk"` // search token
	Kind        string    `dynamodbav:"sk"`
	Term        string    `dynamodbav:"term"`
	Category    string    `dynamodbav:"category"`
	Status      string    `dynamodbav:"status"`
	ResultCount int       `dynamodbav:"result_count"`
	TopNames    []string  `dynamodbav:"top_names,omitempty"`
	Error       string    `dynamodbav:"error,omitempty"`
	CreatedAt   time.Time `dynamodbav:"created_at"`
}

// NewEntry converts a finished session state into an Entry.
func NewEntry(st storesearch.State, now time.Time) Entry {
	e := Entry{
		ID:          st.Token.String(),
		Kind:        SortKey,
		Term:        st.Query.Text,
		Category:    st.Query.Category.String(),
		Status:      st.Status.String(),
		ResultCount: len(st.Results),
		CreatedAt:   now.UTC(),
	}
	for i, r := range st.Results {
		if i == maxNames {
			break
		}
		e.TopNames = append(e.TopNames, r.Name)
	}
	if st.Err != nil {
		e.Error = st.Err.Error()
	}
	return e
}

// DecodeEntry converts a DynamoDB item into an Entry.
func DecodeEntry(item map[string]types.AttributeValue) (Entry, error) {
	var e Entry
	if err := attributevalue.UnmarshalMap(item, &e); err != nil {
		return Entry{}, errors.Wrap(err, "failed to unmarshal history entry")
	}
	return e, nil
}

// PutItemAPI is the DynamoDB operation the Store needs.
type PutItemAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Store writes entries to one table.
type Store struct {
	client    PutItemAPI
	tableName string
	now       func() time.Time
}

// New creates a Store for tableName.
func New(client PutItemAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

// Record stores st if it is a finished search. Loading and idle states are
// ignored and return nil.
func (s *Store) Record(ctx context.Context, st storesearch.State) error {
	if !st.Done() || st.Token.IsZero() {
		return nil
	}

	entry := NewEntry(st, s.now())
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return errors.Wrap(err, "failed to marshal history entry")
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to put history entry %s", entry.ID)
	}
	return nil
}
