package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/civicdata/registry-ingest/pkg/cache"
	"github.com/civicdata/registry-ingest/pkg/fetch"
	"github.com/civicdata/registry-ingest/pkg/hierarchy"
	"github.com/civicdata/registry-ingest/pkg/index"
	"github.com/civicdata/registry-ingest/pkg/loader"
	"github.com/civicdata/registry-ingest/pkg/logging"
	"github.com/civicdata/registry-ingest/pkg/metrics"
	"github.com/civicdata/registry-ingest/pkg/store"
)

const userAgent = "registry-ingest/1.0"

// collections are the search store collections, one per source.
var collections = []string{"contributions", "questions", "firms"}

var rootCmd = &cobra.Command{
	Use:   "registry-ingest",
	Short: "Ingest parliamentary and financial-register data into the search store",
	Long: `registry-ingest loads debate contributions, written questions and
financial-register firm profiles from their rate-limited upstream APIs into
a searchable document store. Responses are cached, so reruns only fetch what
is missing.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(logging.Config{
			Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
			Pretty: getEnvBool("LOG_PRETTY", false),
			Output: os.Stderr,
		})
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(dailyCmd)
	rootCmd.AddCommand(initStoreCmd)
	rootCmd.AddCommand(dropStoreCmd)
}

// app holds the wired-up components shared by the commands.
type app struct {
	store   *store.MongoStore
	runner  func(sources []string) (*loader.Runner, error)
	metrics *metrics.Server

	redis *redis.Client
	mongo *mongo.Client
}

// newApp connects to Redis and MongoDB and wires the ingestion stack.
func newApp(ctx context.Context) (*app, error) {
	redisOpts, err := redis.ParseURL(getEnv("REDIS_URL", "redis://localhost:6379/0"))
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().
		ApplyURI(getEnv("MONGO_URL", "mongodb://localhost:27017")))
	if err != nil {
		return nil, fmt.Errorf("mongo: %w", err)
	}
	if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("mongo: %w", err)
	}

	mongoStore := store.NewMongoStore(mongoClient, getEnv("MONGO_DATABASE", "registry_ingest"))

	a := &app{
		store: mongoStore,
		redis: redisClient,
		mongo: mongoClient,
	}

	if addr := getEnv("METRICS_ADDR", ""); addr != "" {
		srv, err := metrics.Start(addr)
		if err != nil {
			return nil, fmt.Errorf("metrics endpoint: %w", err)
		}
		a.metrics = srv
	}

	a.runner = func(sources []string) (*loader.Runner, error) {
		fetchClient, err := fetch.New(fetch.DefaultConfig(cache.NewManager(redisClient), userAgent))
		if err != nil {
			return nil, err
		}
		indexer := index.NewIndexer(mongoStore)
		return buildRunner(fetchClient, indexer, sources)
	}

	return a, nil
}

// buildRunner assembles the requested loaders, all sources when none are
// named.
func buildRunner(fetchClient *fetch.Client, indexer *index.Indexer, sources []string) (*loader.Runner, error) {
	hansardURL := getEnv("HANSARD_API_URL", "https://hansard-api.parliament.uk")

	available := map[string]func() loader.Loader{
		"hansard": func() loader.Loader {
			resolver := hierarchy.NewResolver(fetchClient, hansardURL)
			return loader.NewHansardLoader(loader.HansardConfig{
				BaseURL: hansardURL,
			}, fetchClient, indexer, resolver)
		},
		"written-questions": func() loader.Loader {
			return loader.NewQuestionsLoader(loader.QuestionsConfig{
				BaseURL: getEnv("QUESTIONS_API_URL", "https://questions-statements-api.parliament.uk"),
			}, fetchClient, indexer)
		},
		"firms-register": func() loader.Loader {
			return loader.NewFirmsLoader(loader.FirmsConfig{
				BaseURL:     getEnv("REGISTER_API_URL", "https://register.fca.org.uk"),
				Email:       getEnv("FCA_API_EMAIL", ""),
				Key:         getEnv("FCA_API_KEY", ""),
				SearchTerms: splitList(getEnv("FIRM_SEARCH_TERMS", "")),
			}, fetchClient, indexer)
		},
	}

	if len(sources) == 0 {
		sources = []string{"hansard", "written-questions", "firms-register"}
	}

	loaders := make([]loader.Loader, 0, len(sources))
	for _, name := range sources {
		build, ok := available[name]
		if !ok {
			return nil, fmt.Errorf("unknown source %q", name)
		}
		loaders = append(loaders, build())
	}
	return loader.NewRunner(loaders...), nil
}

// close releases all connections.
func (a *app) close(ctx context.Context) {
	if a.metrics != nil {
		_ = a.metrics.Stop(ctx)
	}
	_ = a.redis.Close()
	_ = a.mongo.Disconnect(ctx)
}

func printReports(reports []loader.RunReport) {
	for _, r := range reports {
		fmt.Printf("%-20s total=%d indexed=%d duplicates=%d invalid=%d pages_failed=%d in %s\n",
			r.Source, r.Total, r.Indexed, r.Duplicates, r.Invalid, r.PagesFailed,
			r.Duration.Round(time.Millisecond))
	}
}

// getEnv returns the environment variable or the default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns the boolean environment variable or the default value.
func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

// splitList splits a comma-separated value, dropping empty items.
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
