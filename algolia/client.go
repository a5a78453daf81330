// Package algolia serves catalog searches from an Algolia index that mirrors
// iTunes entries, and loads entries into that index.
package algolia

import (
	"context"
	"os"
	"sync"

	"github.com/algolia/algoliasearch-client-go/v3/algolia/search"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Secrets holds the Algolia application credentials.
type Secrets struct {
	// AppID is the Algolia application ID.
	AppID string `json:"app_id"`
	// APIKey is a search key for the mirror, or a write key when loading it.
	APIKey string `json:"api_key"`
}

// FetchSecrets is a function type that retrieves Algolia credentials.
// It allows for different secret retrieval strategies (static, environment variables, etc.).
type FetchSecrets func() (Secrets, error)

// StaticSecrets returns a FetchSecrets function that provides static credentials.
func StaticSecrets(appID, apiKey string) FetchSecrets {
	return func() (Secrets, error) {
		return Secrets{
			AppID:  appID,
			APIKey: apiKey,
		}, nil
	}
}

// EnvSecrets reads ALGOLIA_APP_ID and ALGOLIA_API_KEY.
func EnvSecrets() FetchSecrets {
	return func() (Secrets, error) {
		appID := os.Getenv("ALGOLIA_APP_ID")
		if appID == "" {
			return Secrets{}, errors.New("ALGOLIA_APP_ID environment variable is not set")
		}

		apiKey := os.Getenv("ALGOLIA_API_KEY")
		if apiKey == "" {
			return Secrets{}, errors.New("ALGOLIA_API_KEY environment variable is not set")
		}

		return Secrets{
			AppID:  appID,
			APIKey: apiKey,
		}, nil
	}
}

// index is the subset of *search.Index the package uses.
type index interface {
	Search(query string, opts ...interface{}) (search.QueryRes, error)
	SaveObjects(objects interface{}, opts ...interface{}) (search.GroupBatchRes, error)
}

// Client resolves credentials on first use and hands out index handles.
type Client struct {
	getIndex func(name string) (index, error)
	tracer   trace.Tracer
}

// NewClient returns a Client that fetches its secrets lazily, once.
func NewClient(fetchSecrets FetchSecrets) *Client {
	getClient := sync.OnceValues(func() (*search.Client, error) {
		secrets, err := fetchSecrets()
		if err != nil {
			return nil, errors.Wrap(err, "failed to fetch secrets")
		}

		if secrets.AppID == "" {
			return nil, errors.New("AppID is empty")
		}

		if secrets.APIKey == "" {
			return nil, errors.New("APIKey is empty")
		}

		return search.NewClient(secrets.AppID, secrets.APIKey), nil
	})

	return &Client{
		getIndex: func(name string) (index, error) {
			client, err := getClient()
			if err != nil {
				return nil, err
			}
			return client.InitIndex(name), nil
		},
		tracer: otel.Tracer("storesearch-algolia"),
	}
}

// SaveObjects uploads catalog entries to indexName. Each object must carry an
// objectID.
func (c *Client) SaveObjects(ctx context.Context, indexName string, objects []map[string]interface{}) error {
	if len(objects) == 0 {
		return nil
	}

	_, span := c.tracer.Start(ctx, "algolia.save_objects",
		trace.WithAttributes(
			attribute.String("algolia.index_name", indexName),
			attribute.Int("algolia.object_count", len(objects)),
		),
	)
	defer span.End()

	idx, err := c.getIndex(indexName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get Algolia client")
		return err
	}

	if _, err := idx.SaveObjects(objects); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save objects")
		return errors.Wrapf(err, "failed to save %d objects to Algolia index %s", len(objects), indexName)
	}

	span.SetStatus(codes.Ok, "objects saved")
	return nil
}
