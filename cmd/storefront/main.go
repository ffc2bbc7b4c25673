// Command storefront serves the product listing and exports the catalog.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Sternrassler/storefront/internal/config"
	"github.com/Sternrassler/storefront/pkg/catalog"
	"github.com/Sternrassler/storefront/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// rootOptions holds the global flags.
type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "storefront",
		Short: "Storefront listing service",
		Long: `storefront renders product grids from the public listing API.

The shop view pages through the catalog with offset/limit windows, the feed
view loads the next window whenever its sentinel scrolls into view.
Configuration comes from a YAML file, a .env file and the environment.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to a .env file (missing is fine)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(opts),
		newExportCmd(opts),
		newCategoriesCmd(opts),
	)

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// load reads the configuration and sets up logging.
func (o *rootOptions) load() (*config.Config, error) {
	loaded, err := config.LoadDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	if o.logLevel != "" {
		level, err := logging.ParseLevel(o.logLevel)
		if err != nil {
			return nil, err
		}
		cfg.Logging.Level = string(level)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logging.Setup(cfg.LoggerConfig())
	if loaded {
		log.Debug().Str("path", o.envFile).Msg("Loaded .env file")
	}

	return cfg, nil
}

// newCatalogClient connects Redis when configured and creates the catalog client.
// The returned Redis client is nil without Redis; the caller closes both.
func newCatalogClient(ctx context.Context, cfg *config.Config) (*catalog.Client, *redis.Client, error) {
	var redisClient *redis.Client

	if cfg.Redis.Enabled() {
		redisOpts, err := cfg.Redis.Options()
		if err != nil {
			return nil, nil, err
		}
		redisClient = redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", redisOpts.Addr, err)
		}
		log.Info().Str("addr", redisOpts.Addr).Msg("Connected to Redis")
	} else {
		log.Info().Msg("Redis not configured - cache and shared throttle disabled")
	}

	client, err := catalog.New(cfg.CatalogClientConfig(redisClient))
	if err != nil {
		if redisClient != nil {
			redisClient.Close()
		}
		return nil, nil, fmt.Errorf("create catalog client: %w", err)
	}

	return client, redisClient, nil
}
