package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/letmevibethatforyou/storesearch"
	"github.com/letmevibethatforyou/storesearch/algolia"
	"github.com/letmevibethatforyou/storesearch/artwork"
	"github.com/letmevibethatforyou/storesearch/inmemory"
	"github.com/letmevibethatforyou/storesearch/itunes"
	"github.com/urfave/cli/v2"
)

const (
	defaultTimeout = 10 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" || os.Getenv("AWS_REGION") != "" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}

	app := &cli.App{
		Name:      "query",
		Usage:     "Search the iTunes catalog and print the sorted results as JSON",
		ArgsUsage: "term...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "category",
				Aliases: []string{"c"},
				Usage:   "Media filter: all, music, software or books",
				Value:   "all",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Maximum number of results to request (1-200)",
				Value:   storesearch.DefaultLimit,
			},
			&cli.StringFlag{
				Name:    "country",
				Usage:   "Two-letter store country code",
				EnvVars: []string{"STORESEARCH_COUNTRY"},
			},
			&cli.StringFlag{
				Name:    "lang",
				Usage:   "Result language, e.g. en_us",
				EnvVars: []string{"STORESEARCH_LANG"},
			},
			&cli.StringFlag{
				Name:    "endpoint",
				Usage:   "Catalog search endpoint",
				EnvVars: []string{"STORESEARCH_ENDPOINT"},
				Value:   storesearch.DefaultEndpoint,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Timeout for the whole search",
				Value: defaultTimeout,
			},
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "Where to search: itunes, algolia or memory",
				EnvVars: []string{"STORESEARCH_BACKEND"},
				Value:   "itunes",
			},
			&cli.StringFlag{
				Name:    "catalog",
				Usage:   "Payload file to load for the memory backend",
				EnvVars: []string{"STORESEARCH_CATALOG"},
			},
			&cli.StringFlag{
				Name:    "algolia-index",
				Usage:   "Algolia index holding the catalog mirror",
				EnvVars: []string{"ALGOLIA_INDEX"},
			},
			&cli.StringFlag{
				Name:    "algolia-secret-arn",
				Usage:   "ARN of AWS Secrets Manager secret containing Algolia credentials",
				EnvVars: []string{"ALGOLIA_SECRET_ARN"},
			},
			&cli.BoolFlag{
				Name:  "artwork",
				Usage: "Also download each result's large artwork and report its size",
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

	term := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	category, err := storesearch.ParseCategory(c.String("category"))
	if err != nil {
		return err
	}

	timeout := c.Duration("timeout")
	if timeout <= 0 {
		slog.WarnContext(ctx, "timeout must be positive; using default", "timeout", timeout, "default", defaultTimeout)
		timeout = defaultTimeout
	}

	fetcher, err := newFetcher(ctx, backendConfig{
		Backend:          c.String("backend"),
		CatalogFile:      c.String("catalog"),
		AlgoliaIndex:     c.String("algolia-index"),
		AlgoliaSecretArn: c.String("algolia-secret-arn"),
		Timeout:          timeout,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	session := storesearch.NewSession(fetcher,
		storesearch.WithQueryOptions(
			storesearch.WithEndpoint(c.String("endpoint")),
			storesearch.WithLimit(c.Int("limit")),
			storesearch.WithCountry(c.String("country")),
			storesearch.WithLang(c.String("lang")),
		),
	)
	defer session.Close()

	st, err := search(ctx, session, term, category)
	if err != nil {
		return err
	}

	out := newOutput(st)
	if c.Bool("artwork") && st.Status == storesearch.StatusSucceeded {
		// Artwork always comes from the image CDN, whichever backend answered the search.
		out.Artwork = loadArtwork(ctx, artwork.NewLoader(itunes.New(itunes.WithTimeout(timeout))), st.Results)
	}

	if err := printJSON(c.App.Writer, out); err != nil {
		return errors.Wrap(err, "failed to serialize results")
	}

	if st.Status == storesearch.StatusFailed {
		return errors.Wrap(st.Err, "search failed")
	}
	return nil
}

// search runs one search on session and waits for it to finish.
func search(ctx context.Context, session *storesearch.Session, term string, category storesearch.Category) (storesearch.State, error) {
	slog.InfoContext(ctx, "executing query", "term", term, "category", category)

	if _, err := session.StartSearch(ctx, term, category); err != nil {
		return storesearch.State{}, err
	}
	st, err := session.Wait(ctx)
	if err != nil {
		return storesearch.State{}, errors.Wrap(err, "search did not finish")
	}
	return st, nil
}

type backendConfig struct {
	Backend          string
	CatalogFile      string
	AlgoliaIndex     string
	AlgoliaSecretArn string
	Timeout          time.Duration
}

func newFetcher(ctx context.Context, cfg backendConfig) (storesearch.Fetcher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "itunes":
		return itunes.New(itunes.WithTimeout(cfg.Timeout)), nil

	case "memory":
		if cfg.CatalogFile == "" {
			return nil, errors.New("--catalog is required for the memory backend")
		}
		data, err := os.ReadFile(cfg.CatalogFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read catalog")
		}
		catalog := inmemory.New()
		n, err := catalog.LoadPayload(data)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "loaded catalog", "file", cfg.CatalogFile, "entries", n)
		return catalog, nil

	case "algolia":
		if cfg.AlgoliaIndex == "" {
			return nil, errors.New("--algolia-index is required for the algolia backend")
		}
		fetchSecrets := algolia.EnvSecrets()
		if cfg.AlgoliaSecretArn != "" {
			slog.InfoContext(ctx, "using AWS Secrets Manager for Algolia credentials", "secret_arn", cfg.AlgoliaSecretArn)
			awsCfg, err := config.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, errors.Wrap(err, "failed to load AWS config")
			}
			fetchSecrets = algolia.AWSSecretsFromARN(ctx, secretsmanager.NewFromConfig(awsCfg), cfg.AlgoliaSecretArn)
		}
		return algolia.NewMirror(algolia.NewClient(fetchSecrets), cfg.AlgoliaIndex), nil

	default:
		return nil, errors.Newf("unknown backend %q", cfg.Backend)
	}
}

type output struct {
	Token    string               `json:"token"`
	Term     string               `json:"term"`
	Category string               `json:"category"`
	Status   string               `json:"status"`
	Count    int                  `json:"count"`
	Error    string               `json:"error,omitempty"`
	Results  []storesearch.Record `json:"results"`
	Artwork  []artworkInfo        `json:"artwork,omitempty"`
}

type artworkInfo struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Bytes int    `json:"bytes"`
	Size  string `json:"size"`
	Error string `json:"error,omitempty"`
}

func newOutput(st storesearch.State) output {
	out := output{
		Token:    st.Token.String(),
		Term:     st.Query.Text,
		Category: st.Query.Category.String(),
		Status:   st.Status.String(),
		Count:    len(st.Results),
		Results:  st.Results,
	}
	if out.Results == nil {
		out.Results = []storesearch.Record{}
	}
	if st.Err != nil {
		out.Error = st.Err.Error()
	}
	return out
}

// loadArtwork downloads every record's large image concurrently.
func loadArtwork(ctx context.Context, loader *artwork.Loader, records []storesearch.Record) []artworkInfo {
	handles := make([]*artwork.Handle, 0, len(records))
	infos := make([]artworkInfo, 0, len(records))
	for _, r := range records {
		u := r.LargeImageURL()
		if u == nil {
			continue
		}
		handles = append(handles, loader.Load(ctx, u))
		infos = append(infos, artworkInfo{Name: r.Name, URL: u.String()})
	}

	for i, h := range handles {
		<-h.Done()
		infos[i].Bytes = len(h.Bytes())
		infos[i].Size = humanize.IBytes(uint64(infos[i].Bytes))
		if err := h.Err(); err != nil {
			infos[i].Error = err.Error()
		}
		h.Close()
	}
	return infos
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
