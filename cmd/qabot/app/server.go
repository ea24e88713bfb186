// Package app provides the qabot server application.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kart-io/qabot/cmd/qabot/app/options"
	qabotsvc "github.com/kart-io/qabot/internal/qabot"
	"github.com/kart-io/qabot/internal/qabot/biz"
	"github.com/kart-io/qabot/internal/qabot/sheets"
	"github.com/kart-io/qabot/internal/qabot/store"
)

const commandDesc = `Company Q&A bot service.

Keeps a Milvus vector collection synchronized with a Google-Sheets-maintained
Q&A knowledge base and answers visitor questions with retrieval-grounded LLM
generation.

The knowledge base syncs on sheet-update webhooks, on a periodic fallback
timer, and on demand through the admin reindex endpoint.`

// NewQABotCommand creates the root command.
func NewQABotCommand() *cobra.Command {
	opts := options.NewServerOptions()
	var configFile string

	cmd := &cobra.Command{
		Use:           qabotsvc.Name,
		Long:          commandDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, configFile, opts); err != nil {
				return err
			}
			if err := opts.Complete(); err != nil {
				return err
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			return run(opts)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file")
	opts.AddFlags(cmd.Flags())
	return cmd
}

// loadConfig layers configuration: defaults < config file < env (QABOT_*) <
// command-line flags.
func loadConfig(cmd *cobra.Command, configFile string, opts *options.ServerOptions) error {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("QABOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	return v.Unmarshal(opts)
}

func run(opts *options.ServerOptions) error {
	if err := opts.Log.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg := buildConfig(opts)

	ctx := context.Background()
	server, err := cfg.NewServer(ctx)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return server.Run(ctx)
}

// buildConfig maps the flat option set onto the server wiring config.
func buildConfig(opts *options.ServerOptions) *qabotsvc.Config {
	return &qabotsvc.Config{
		HTTPAddr:        opts.HTTPAddr,
		ShutdownTimeout: opts.ShutdownTimeout,
		WebhookSecret:   opts.WebhookSecret,
		SyncInterval:    opts.Sync.Interval,
		SyncOnStart:     opts.Sync.SyncOnStart,
		ManifestPath:    opts.Sync.ManifestPath,
		Sheets: &sheets.Options{
			SpreadsheetID:   opts.Sheets.SpreadsheetID,
			SheetName:       opts.Sheets.SheetName,
			CredentialsJSON: opts.Sheets.CredentialsJSON,
			CredentialsFile: opts.Sheets.CredentialsFile,
		},
		Milvus: &store.MilvusOptions{
			Address:    opts.Milvus.Address,
			Username:   opts.Milvus.Username,
			Password:   opts.Milvus.Password,
			Database:   opts.Milvus.Database,
			Collection: opts.Milvus.Collection,
			Timeout:    opts.Milvus.Timeout,
		},
		Embedding: &qabotsvc.ProviderConfig{
			Provider: opts.Embedding.Provider,
			Config:   opts.Embedding.ToConfigMap(),
		},
		Chat: &qabotsvc.ProviderConfig{
			Provider: opts.Chat.Provider,
			Config:   opts.Chat.ToConfigMap(),
		},
		Indexer: &biz.IndexerConfig{
			Chunker: &biz.ChunkerConfig{
				MaxRunes:     opts.Sync.ChunkSize,
				OverlapRunes: opts.Sync.ChunkOverlap,
			},
			EmbeddingDim:     opts.Sync.EmbeddingDim,
			EmbedBatchSize:   opts.Sync.EmbedBatchSize,
			EmbedConcurrency: opts.Sync.EmbedConcurrency,
		},
		Retriever: &biz.RetrieverConfig{
			TopK:     opts.Retrieval.TopK,
			MinScore: opts.Retrieval.MinScore,
		},
		Cache: &biz.QueryCacheConfig{
			Enabled:   opts.Cache.Enabled,
			TTL:       opts.Cache.TTL,
			KeyPrefix: opts.Cache.KeyPrefix,
		},
		Redis: &qabotsvc.RedisConfig{
			Addr:     opts.Cache.RedisAddr,
			Password: opts.Cache.RedisPassword,
			DB:       opts.Cache.RedisDB,
		},
	}
}
