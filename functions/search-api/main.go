package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/storesearch"
	"github.com/letmevibethatforyou/storesearch/algolia"
	"github.com/letmevibethatforyou/storesearch/internal/history"
	"github.com/letmevibethatforyou/storesearch/itunes"
	"github.com/urfave/cli/v2"
)

// Request is the invocation payload.
type Request struct {
	Term     string `json:"term"`
	Category string `json:"category"`
	Limit    int    `json:"limit,omitempty"`
	Country  string `json:"country,omitempty"`
}

// Response is the invocation result. Failed searches are reported here, not
// as invocation errors.
type Response struct {
	Token   string               `json:"token"`
	Status  string               `json:"status"`
	Count   int                  `json:"count"`
	Results []storesearch.Record `json:"results"`
	Error   string               `json:"error,omitempty"`
}

// Recorder stores finished searches.
type Recorder interface {
	Record(ctx context.Context, st storesearch.State) error
}

type Handler struct {
	fetcher  storesearch.Fetcher
	recorder Recorder
}

// NewHandler creates a Handler. recorder may be nil.
func NewHandler(fetcher storesearch.Fetcher, recorder Recorder) *Handler {
	return &Handler{
		fetcher:  fetcher,
		recorder: recorder,
	}
}

// HandleSearch runs one search to completion. Invalid input is an invocation
// error; a failed search is not.
func (h *Handler) HandleSearch(ctx context.Context, req Request) (Response, error) {
	category, err := storesearch.ParseCategory(req.Category)
	if err != nil {
		return Response{}, err
	}

	session := storesearch.NewSession(h.fetcher,
		storesearch.WithQueryOptions(
			storesearch.WithLimit(req.Limit),
			storesearch.WithCountry(req.Country),
		),
	)
	defer session.Close()

	if _, err := session.StartSearch(ctx, req.Term, category); err != nil {
		return Response{}, err
	}
	st, err := session.Wait(ctx)
	if err != nil {
		return Response{}, errors.Wrap(err, "search did not finish")
	}

	slog.InfoContext(ctx, "Search finished",
		"token", st.Token.String(),
		"term", st.Query.Text,
		"category", category.String(),
		"status", st.Status.String(),
		"result_count", len(st.Results),
	)

	if h.recorder != nil {
		if err := h.recorder.Record(ctx, st); err != nil {
			slog.WarnContext(ctx, "Failed to record search history", "token", st.Token.String(), "error", err)
		}
	}

	resp := Response{
		Token:   st.Token.String(),
		Status:  st.Status.String(),
		Count:   len(st.Results),
		Results: st.Results,
	}
	if resp.Results == nil {
		resp.Results = []storesearch.Record{}
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	return resp, nil
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	app := &cli.App{
		Name:  "search-api",
		Usage: "Serve catalog searches from AWS Lambda",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "table-name",
				Usage:   "DynamoDB table to record search history in; disabled when empty",
				EnvVars: []string{"TABLE_NAME"},
			},
			&cli.StringFlag{
				Name:    "env",
				Usage:   "Environment name for AWS Secrets Manager Algolia credentials",
				EnvVars: []string{"ENV", "ENVIRONMENT"},
			},
			&cli.StringFlag{
				Name:    "algolia-index",
				Usage:   "Serve searches from this Algolia mirror instead of iTunes",
				EnvVars: []string{"ALGOLIA_INDEX"},
			},
		},
		Action: runAction,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func runAction(c *cli.Context) error {
	ctx := c.Context
	tableName := c.String("table-name")
	env := c.String("env")
	indexName := c.String("algolia-index")

	slog.InfoContext(ctx, "Starting search API", "table", tableName, "environment", env, "algolia_index", indexName)

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load AWS config", "error", err)
		return err
	}

	var fetcher storesearch.Fetcher = itunes.New()
	if indexName != "" {
		fetchSecrets := algolia.EnvSecrets()
		if env != "" {
			slog.InfoContext(ctx, "Using AWS Secrets Manager for credentials", "environment", env)
			fetchSecrets = algolia.AWSSecrets(ctx, secretsmanager.NewFromConfig(cfg), env)
		}
		fetcher = algolia.NewMirror(algolia.NewClient(fetchSecrets), indexName)
	}

	var recorder Recorder
	if tableName != "" {
		recorder = history.New(dynamodb.NewFromConfig(cfg), tableName)
	}

	handler := NewHandler(fetcher, recorder)

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		slog.InfoContext(ctx, "Running in Lambda environment")
		lambda.Start(handler.HandleSearch)
	} else {
		slog.InfoContext(ctx, "Function cannot run outside of AWS Lambda environment")
	}

	return nil
}
