package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/letmevibethatforyou/storesearch/algolia"
	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"
)

var (
	artists = map[string][]string{
		"Daft Punk":       {"One More Time", "Digital Love", "Around the World", "Get Lucky", "Instant Crush"},
		"The Cranberries": {"Zombie", "Linger", "Dreams", "Ode to My Family"},
		"Nina Simone":     {"Feeling Good", "Sinnerman", "I Put a Spell on You", "Little Girl Blue"},
		"Radiohead":       {"Creep", "Karma Police", "No Surprises", "Reckoner", "Nude"},
		"Björk":           {"Jóga", "Hyperballad", "Army of Me", "Hunter"},
	}

	apps = map[string][]string{
		"Acme Labs":     {"Maps Pro", "Weather Now", "Punk Radio", "Notes+"},
		"Blue Fox Ltd.": {"Focus Timer", "Budget Buddy", "Sleep Sounds"},
		"Indie Studio":  {"Pixel Quest", "Word Hunt", "Chess Club"},
	}

	books = map[string][]string{
		"Ursula K. Le Guin": {"A Wizard of Earthsea", "The Dispossessed", "The Left Hand of Darkness"},
		"Octavia E. Butler": {"Kindred", "Parable of the Sower", "Dawn"},
		"Italo Calvino":     {"Invisible Cities", "If on a Winter's Night a Traveler"},
	}

	musicGenres = []string{"Electronic", "Alternative", "Jazz", "Rock", "Pop"}
	appGenres   = []string{"Navigation", "Weather", "Productivity", "Games", "Finance", "Music"}
	bookGenres  = []string{"Sci-Fi & Fantasy", "Fiction & Literature", "Classics"}
	songPrices  = []float64{0.69, 0.99, 1.29}
	appPrices   = []float64{0, 0, 0, 0.99, 2.99, 4.99}
	bookPrices  = []float64{0, 4.99, 9.99, 12.99}
)

func pick[T any](items []T) T {
	return items[rand.IntN(len(items))]
}

func pickEntry(m map[string][]string) (string, string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	key := pick(keys)
	return key, pick(m[key])
}

func artwork(id int) (string, string) {
	base := fmt.Sprintf("https://is1-ssl.mzstatic.com/image/thumb/%d", id)
	return base + "/60x60bb.jpg", base + "/100x100bb.jpg"
}

// generateEntry returns one iTunes-shaped result object.
func generateEntry() map[string]interface{} {
	id := rand.IntN(900_000_000) + 100_000_000
	small, large := artwork(id)
	entry := map[string]interface{}{
		"objectID":      ksuid.New().String(),
		"trackId":       id,
		"currency":      "USD",
		"artworkUrl60":  small,
		"artworkUrl100": large,
	}

	switch rand.IntN(3) {
	case 0:
		artist, song := pickEntry(artists)
		entry["wrapperType"] = "track"
		entry["kind"] = "song"
		entry["trackName"] = song
		entry["artistName"] = artist
		entry["primaryGenreName"] = pick(musicGenres)
		entry["trackPrice"] = pick(songPrices)
		entry["trackViewUrl"] = fmt.Sprintf("https://music.apple.com/us/song/%d", id)
	case 1:
		seller, app := pickEntry(apps)
		entry["wrapperType"] = "software"
		entry["kind"] = "software"
		entry["trackName"] = app
		entry["sellerName"] = seller
		entry["genres"] = []string{pick(appGenres), pick(appGenres)}
		entry["price"] = pick(appPrices)
		entry["trackViewUrl"] = fmt.Sprintf("https://apps.apple.com/us/app/id%d", id)
	default:
		author, title := pickEntry(books)
		entry["kind"] = "ebook"
		entry["trackName"] = title
		entry["artistName"] = author
		entry["genres"] = []string{pick(bookGenres)}
		entry["price"] = pick(bookPrices)
		entry["trackViewUrl"] = fmt.Sprintf("https://books.apple.com/us/book/id%d", id)
	}
	return entry
}

func generatePayload(count int) map[string]interface{} {
	results := make([]map[string]interface{}, count)
	for i := range results {
		results[i] = generateEntry()
	}
	return map[string]interface{}{
		"resultCount": count,
		"results":     results,
	}
}

func writePayload(w io.Writer, payload map[string]interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func runAction(c *cli.Context) error {
	ctx := c.Context
	count := c.Int("count")
	if count <= 0 {
		return errors.Newf("count must be positive, got %d", count)
	}

	payload := generatePayload(count)

	out := c.App.Writer
	if path := c.String("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrap(err, "failed to create output file")
		}
		defer f.Close()
		out = f
	}
	if err := writePayload(out, payload); err != nil {
		return errors.Wrap(err, "failed to write payload")
	}
	slog.InfoContext(ctx, "Generated catalog fixture", "count", count, "out", c.String("out"))

	indexName := c.String("algolia-index")
	if indexName == "" {
		return nil
	}

	fetchSecrets := algolia.EnvSecrets()
	if arn := c.String("algolia-secret-arn"); arn != "" {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to load AWS config")
		}
		fetchSecrets = algolia.AWSSecretsFromARN(ctx, secretsmanager.NewFromConfig(cfg), arn)
	}

	objects := payload["results"].([]map[string]interface{})
	if err := algolia.NewClient(fetchSecrets).SaveObjects(ctx, indexName, objects); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Uploaded catalog fixture to Algolia", "index", indexName, "count", len(objects))
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	// Configure JSON logging for AWS environments
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" || os.Getenv("AWS_REGION") != "" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}

	app := &cli.App{
		Name:  "fixture",
		Usage: "Generate a random catalog payload for the memory backend or an Algolia mirror",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"c"},
				Usage:   "Number of entries to generate",
				Value:   50,
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "File to write; stdout when empty",
			},
			&cli.StringFlag{
				Name:    "algolia-index",
				Usage:   "Also upload the entries to this Algolia index",
				EnvVars: []string{"ALGOLIA_INDEX"},
			},
			&cli.StringFlag{
				Name:    "algolia-secret-arn",
				Usage:   "ARN of AWS Secrets Manager secret containing Algolia credentials",
				EnvVars: []string{"ALGOLIA_SECRET_ARN"},
			},
		},
		Action: runAction,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}
