// Package config loads application configuration from the environment.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/kelseyhightower/envconfig"
)

// Config is the container for app configuration.
type Config struct {
	// GithubToken - personal access token; read from GITHUB_TOKEN.
	GithubToken string `envconfig:"GITHUB_TOKEN" default:""`

	// TokenSecret - AWS Secrets Manager secret holding {"github_token": "..."}; used when GithubToken is empty.
	TokenSecret string `envconfig:"STATS_TOKEN_SECRET" default:""`

	// GithubAPIAddress - REST api base url; GraphQL lives under <address>/graphql
	GithubAPIAddress string `envconfig:"STATS_GITHUB_API" default:"https://api.github.com/"`

	// RequestRate - max requests per second sent to the api
	RequestRate float64 `envconfig:"STATS_REQUEST_RATE" default:"10"`

	// Workers - parallel per-repository fetches
	Workers int `envconfig:"STATS_WORKERS" default:"5"`

	// FetchTimeout - timeout of a single per-repository call
	FetchTimeout time.Duration `envconfig:"STATS_FETCH_TIMEOUT" default:"30s"`

	BytesPerLine     int64  `envconfig:"STATS_BYTES_PER_LINE" default:"40"`
	SampleSize       int    `envconfig:"STATS_SAMPLE_SIZE" default:"0"`
	TopLanguages     int    `envconfig:"STATS_TOP_LANGUAGES" default:"5"`
	CommitStrategy   string `envconfig:"STATS_COMMIT_STRATEGY" default:"multiplier"`
	CommitMultiplier int64  `envconfig:"STATS_COMMIT_MULTIPLIER" default:"3"`
	LanguageSource   string `envconfig:"STATS_LANGUAGE_SOURCE" default:"listing"`

	// Orgs - organizations listed in addition to the personal account
	Orgs []string `envconfig:"STATS_ORGS" default:""`

	// SnapshotPath - json snapshot overwritten on each run
	SnapshotPath string `envconfig:"STATS_SNAPSHOT_PATH" default:"github_stats.json"`

	// CacheDBPath - bolt db caching per-repository results. If empty, caching is disabled
	CacheDBPath string `envconfig:"STATS_CACHE_DB" default:""`

	// CacheBucket - bolt db bucket name
	CacheBucket string `envconfig:"STATS_CACHE_BUCKET" default:"github"`

	// CacheSize - maximum number of in-memory cache entries
	CacheSize int `envconfig:"STATS_CACHE_SIZE" default:"10000"`

	// CacheTTL - maximum lifetime of cached per-repository results
	CacheTTL time.Duration `envconfig:"STATS_CACHE_TTL" default:"8h"`

	// HistoryDBPath - sqlite file recording every snapshot. If empty, history is disabled
	HistoryDBPath string `envconfig:"STATS_HISTORY_DB" default:""`

	S3Bucket string `envconfig:"STATS_S3_BUCKET" default:""`
	S3Key    string `envconfig:"STATS_S3_KEY" default:"github_stats.json"`

	MongoURI        string `envconfig:"STATS_MONGO_URI" default:""`
	MongoDatabase   string `envconfig:"STATS_MONGO_DATABASE" default:"dashboard"`
	MongoCollection string `envconfig:"STATS_MONGO_COLLECTION" default:"github_stats"`

	// Schedule - cron schedule of stats refreshes, used by the countdown badge
	Schedule string `envconfig:"STATS_SCHEDULE" default:"0 */8 * * *"`

	// ServeAddress - listen address for the badge server
	ServeAddress string `envconfig:"STATS_SERVE_ADDRESS" default:"0.0.0.0:8080"`

	// RequestTimeout - per-request timeout of the badge server
	RequestTimeout time.Duration `envconfig:"STATS_REQUEST_TIMEOUT" default:"10s"`
}

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Function variables to allow swapping with mocks in tests.
var (
	loadAWSConfig = awsconfig.LoadDefaultConfig

	SecretsManagerFunc = func(ctx context.Context) (SecretsManagerAPI, error) {
		cfg, err := loadAWSConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return secretsmanager.NewFromConfig(cfg), nil
	}
)

// ErrMissingToken is returned when no token is configured anywhere.
var ErrMissingToken = errors.New("GITHUB_TOKEN environment variable is not set")

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	var conf Config
	if err := envconfig.Process("", &conf); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &conf, nil
}

// ResolveToken makes sure GithubToken is set, reading it from Secrets Manager if configured.
func (c *Config) ResolveToken(ctx context.Context) error {
	if c.GithubToken != "" {
		return nil
	}
	if c.TokenSecret == "" {
		return ErrMissingToken
	}

	svc, err := SecretsManagerFunc(ctx)
	if err != nil {
		return err
	}
	result, err := svc.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(c.TokenSecret),
	})
	if err != nil {
		return fmt.Errorf("failed to retrieve secret: %w", err)
	}
	if result.SecretString == nil {
		return fmt.Errorf("secret %s has no string value", c.TokenSecret)
	}

	var secret struct {
		GithubToken string `json:"github_token"`
	}
	if err := json.Unmarshal([]byte(*result.SecretString), &secret); err != nil {
		return fmt.Errorf("failed to unmarshal secret string: %w", err)
	}
	if secret.GithubToken == "" {
		return ErrMissingToken
	}
	c.GithubToken = secret.GithubToken
	return nil
}
