// Package options provides the qabot server configuration.
package options

import (
	"fmt"
	"time"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/option"
	"github.com/spf13/pflag"
)

// ServerOptions contains all qabot server options.
type ServerOptions struct {
	// HTTPAddr is the listen address of the HTTP server.
	HTTPAddr string `json:"http-addr" mapstructure:"http-addr"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`

	// WebhookSecret guards the sheet-update webhook. Empty disables the check.
	WebhookSecret string `json:"webhook-secret" mapstructure:"webhook-secret"`

	Log       *LogOptions         `json:"log" mapstructure:"log"`
	Sheets    *SheetsOptions      `json:"sheets" mapstructure:"sheets"`
	Milvus    *MilvusOptions      `json:"milvus" mapstructure:"milvus"`
	Embedding *LLMProviderOptions `json:"embedding" mapstructure:"embedding"`
	Chat      *LLMProviderOptions `json:"chat" mapstructure:"chat"`
	Sync      *SyncOptions        `json:"sync" mapstructure:"sync"`
	Retrieval *RetrievalOptions   `json:"retrieval" mapstructure:"retrieval"`
	Cache     *CacheOptions       `json:"cache" mapstructure:"cache"`
}

// LogOptions wraps the logger option.LogOption.
type LogOptions struct {
	*option.LogOption
}

// NewLogOptions creates default logger options.
func NewLogOptions() *LogOptions {
	return &LogOptions{LogOption: option.DefaultLogOption()}
}

// AddFlags adds logger flags to the flagset.
func (o *LogOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Engine, "log.engine", o.Engine, "Logging engine (zap|slog)")
	fs.StringVar(&o.Level, "log.level", o.Level, "Log level (DEBUG|INFO|WARN|ERROR|FATAL)")
	fs.StringVar(&o.Format, "log.format", o.Format, "Log format (json|console)")
	fs.StringSliceVar(&o.OutputPaths, "log.output-paths", o.OutputPaths, "Output paths for logs")
	fs.BoolVar(&o.Development, "log.development", o.Development, "Enable development mode")
}

// Init initializes the global logger.
func (o *LogOptions) Init() error {
	log, err := logger.New(o.LogOption)
	if err != nil {
		return err
	}
	logger.SetGlobal(log)
	return nil
}

// SheetsOptions configures the Google Sheets source.
type SheetsOptions struct {
	// SpreadsheetID identifies the knowledge-base spreadsheet.
	SpreadsheetID string `json:"spreadsheet-id" mapstructure:"spreadsheet-id"`

	// SheetName is the tab holding the Q&A rows.
	SheetName string `json:"sheet-name" mapstructure:"sheet-name"`

	// CredentialsJSON holds inline service-account credentials.
	CredentialsJSON string `json:"credentials-json" mapstructure:"credentials-json"`

	// CredentialsFile is the path to a service-account key file.
	CredentialsFile string `json:"credentials-file" mapstructure:"credentials-file"`
}

// NewSheetsOptions creates default sheets options.
func NewSheetsOptions() *SheetsOptions {
	return &SheetsOptions{
		SheetName: "Sheet1",
	}
}

// AddFlags adds sheets flags to the flagset.
func (o *SheetsOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.SpreadsheetID, "sheets.spreadsheet-id", o.SpreadsheetID, "Google Sheets spreadsheet ID")
	fs.StringVar(&o.SheetName, "sheets.sheet-name", o.SheetName, "Sheet tab name")
	fs.StringVar(&o.CredentialsJSON, "sheets.credentials-json", o.CredentialsJSON, "Inline service account credentials JSON")
	fs.StringVar(&o.CredentialsFile, "sheets.credentials-file", o.CredentialsFile, "Path to service account credentials file")
}

// MilvusOptions configures the Milvus connection.
type MilvusOptions struct {
	Address    string        `json:"address" mapstructure:"address"`
	Username   string        `json:"username" mapstructure:"username"`
	Password   string        `json:"password" mapstructure:"password"`
	Database   string        `json:"database" mapstructure:"database"`
	Collection string        `json:"collection" mapstructure:"collection"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewMilvusOptions creates default Milvus options.
func NewMilvusOptions() *MilvusOptions {
	return &MilvusOptions{
		Address:    "localhost:19530",
		Database:   "default",
		Collection: "company_qa",
		Timeout:    10 * time.Second,
	}
}

// AddFlags adds Milvus flags to the flagset.
func (o *MilvusOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Address, "milvus.address", o.Address, "Milvus server address")
	fs.StringVar(&o.Username, "milvus.username", o.Username, "Milvus username")
	fs.StringVar(&o.Password, "milvus.password", o.Password, "Milvus password")
	fs.StringVar(&o.Database, "milvus.database", o.Database, "Milvus database name")
	fs.StringVar(&o.Collection, "milvus.collection", o.Collection, "Milvus collection name")
	fs.DurationVar(&o.Timeout, "milvus.timeout", o.Timeout, "Milvus connection timeout")
}

// LLMProviderOptions configures one LLM provider.
type LLMProviderOptions struct {
	// Provider names the registered provider (openai, ollama).
	Provider string `json:"provider" mapstructure:"provider"`

	BaseURL    string        `json:"base-url" mapstructure:"base-url"`
	APIKey     string        `json:"api-key" mapstructure:"api-key"`
	Model      string        `json:"model" mapstructure:"model"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max-retries" mapstructure:"max-retries"`
}

// NewLLMProviderOptions creates default provider options.
func NewLLMProviderOptions() *LLMProviderOptions {
	return &LLMProviderOptions{
		Provider:   "openai",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// AddFlags adds provider flags under the given prefix.
func (o *LLMProviderOptions) AddFlags(fs *pflag.FlagSet, prefix string) {
	fs.StringVar(&o.Provider, prefix+".provider", o.Provider, "LLM provider (openai, ollama)")
	fs.StringVar(&o.BaseURL, prefix+".base-url", o.BaseURL, "API base URL")
	fs.StringVar(&o.APIKey, prefix+".api-key", o.APIKey, "API key")
	fs.StringVar(&o.Model, prefix+".model", o.Model, "Model name")
	fs.DurationVar(&o.Timeout, prefix+".timeout", o.Timeout, "Request timeout")
	fs.IntVar(&o.MaxRetries, prefix+".max-retries", o.MaxRetries, "Max retries")
}

// ToConfigMap converts the options into the provider-factory config map.
func (o *LLMProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":    o.BaseURL,
		"api_key":     o.APIKey,
		"embed_model": o.Model,
		"chat_model":  o.Model,
		"timeout":     o.Timeout,
		"max_retries": o.MaxRetries,
	}
}

// SyncOptions configures the indexing pipeline.
type SyncOptions struct {
	// ManifestPath is where the index manifest lives on disk.
	ManifestPath string `json:"manifest-path" mapstructure:"manifest-path"`

	// Interval is the periodic fallback sync cadence. Zero disables it.
	Interval time.Duration `json:"interval" mapstructure:"interval"`

	// SyncOnStart runs one sync right after startup.
	SyncOnStart bool `json:"sync-on-start" mapstructure:"sync-on-start"`

	ChunkSize        int `json:"chunk-size" mapstructure:"chunk-size"`
	ChunkOverlap     int `json:"chunk-overlap" mapstructure:"chunk-overlap"`
	EmbeddingDim     int `json:"embedding-dim" mapstructure:"embedding-dim"`
	EmbedBatchSize   int `json:"embed-batch-size" mapstructure:"embed-batch-size"`
	EmbedConcurrency int `json:"embed-concurrency" mapstructure:"embed-concurrency"`
}

// NewSyncOptions creates default sync options.
func NewSyncOptions() *SyncOptions {
	return &SyncOptions{
		ManifestPath:     "_output/qabot/manifest.json",
		Interval:         1 * time.Hour,
		SyncOnStart:      true,
		ChunkSize:        800,
		ChunkOverlap:     100,
		EmbeddingDim:     1536, // text-embedding-3-small dimension
		EmbedBatchSize:   50,
		EmbedConcurrency: 4,
	}
}

// AddFlags adds sync flags to the flagset.
func (o *SyncOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.ManifestPath, "sync.manifest-path", o.ManifestPath, "Path of the index manifest file")
	fs.DurationVar(&o.Interval, "sync.interval", o.Interval, "Periodic fallback sync interval (0 disables)")
	fs.BoolVar(&o.SyncOnStart, "sync.sync-on-start", o.SyncOnStart, "Run a sync at startup")
	fs.IntVar(&o.ChunkSize, "sync.chunk-size", o.ChunkSize, "Chunk size in runes")
	fs.IntVar(&o.ChunkOverlap, "sync.chunk-overlap", o.ChunkOverlap, "Chunk overlap in runes")
	fs.IntVar(&o.EmbeddingDim, "sync.embedding-dim", o.EmbeddingDim, "Embedding vector dimension")
	fs.IntVar(&o.EmbedBatchSize, "sync.embed-batch-size", o.EmbedBatchSize, "Texts per embedding call")
	fs.IntVar(&o.EmbedConcurrency, "sync.embed-concurrency", o.EmbedConcurrency, "Concurrent embedding batches")
}

// RetrievalOptions configures similarity search.
type RetrievalOptions struct {
	TopK     int     `json:"top-k" mapstructure:"top-k"`
	MinScore float64 `json:"min-score" mapstructure:"min-score"`
}

// NewRetrievalOptions creates default retrieval options.
func NewRetrievalOptions() *RetrievalOptions {
	return &RetrievalOptions{
		TopK:     5,
		MinScore: 0.3,
	}
}

// AddFlags adds retrieval flags to the flagset.
func (o *RetrievalOptions) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.TopK, "retrieval.top-k", o.TopK, "Number of nearest chunks to retrieve")
	fs.Float64Var(&o.MinScore, "retrieval.min-score", o.MinScore, "Normalized similarity score floor")
}

// CacheOptions 查询缓存配置。
type CacheOptions struct {
	Enabled   bool          `json:"enabled" mapstructure:"enabled"`
	TTL       time.Duration `json:"ttl" mapstructure:"ttl"`
	KeyPrefix string        `json:"key-prefix" mapstructure:"key-prefix"`

	RedisAddr     string `json:"redis-addr" mapstructure:"redis-addr"`
	RedisPassword string `json:"redis-password" mapstructure:"redis-password"`
	RedisDB       int    `json:"redis-db" mapstructure:"redis-db"`
}

// NewCacheOptions creates default cache options.
func NewCacheOptions() *CacheOptions {
	return &CacheOptions{
		Enabled:   false,
		TTL:       1 * time.Hour,
		KeyPrefix: "qabot:query:",
		RedisAddr: "localhost:6379",
	}
}

// AddFlags adds cache flags to the flagset.
func (o *CacheOptions) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "cache.enabled", o.Enabled, "Enable query result cache")
	fs.DurationVar(&o.TTL, "cache.ttl", o.TTL, "Cache TTL")
	fs.StringVar(&o.KeyPrefix, "cache.key-prefix", o.KeyPrefix, "Cache key prefix")
	fs.StringVar(&o.RedisAddr, "cache.redis-addr", o.RedisAddr, "Redis address")
	fs.StringVar(&o.RedisPassword, "cache.redis-password", o.RedisPassword, "Redis password")
	fs.IntVar(&o.RedisDB, "cache.redis-db", o.RedisDB, "Redis database number")
}

// NewServerOptions creates ServerOptions with defaults.
func NewServerOptions() *ServerOptions {
	embedding := NewLLMProviderOptions()
	embedding.Model = "text-embedding-3-small"

	chat := NewLLMProviderOptions()
	chat.Model = "gpt-4o-mini"

	return &ServerOptions{
		HTTPAddr:        ":8080",
		ShutdownTimeout: 30 * time.Second,
		Log:             NewLogOptions(),
		Sheets:          NewSheetsOptions(),
		Milvus:          NewMilvusOptions(),
		Embedding:       embedding,
		Chat:            chat,
		Sync:            NewSyncOptions(),
		Retrieval:       NewRetrievalOptions(),
		Cache:           NewCacheOptions(),
	}
}

// AddFlags adds all server flags to the flagset.
func (o *ServerOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.HTTPAddr, "http-addr", o.HTTPAddr, "HTTP listen address")
	fs.DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout")
	fs.StringVar(&o.WebhookSecret, "webhook-secret", o.WebhookSecret, "Shared secret of the sheet-update webhook")

	o.Log.AddFlags(fs)
	o.Sheets.AddFlags(fs)
	o.Milvus.AddFlags(fs)
	o.Embedding.AddFlags(fs, "embedding")
	o.Chat.AddFlags(fs, "chat")
	o.Sync.AddFlags(fs)
	o.Retrieval.AddFlags(fs)
	o.Cache.AddFlags(fs)
}

// Validate validates the options.
func (o *ServerOptions) Validate() error {
	if o.Sheets.SpreadsheetID == "" {
		return fmt.Errorf("sheets.spreadsheet-id is required")
	}
	if o.Sheets.CredentialsJSON == "" && o.Sheets.CredentialsFile == "" {
		return fmt.Errorf("one of sheets.credentials-json or sheets.credentials-file is required")
	}
	if o.Milvus.Address == "" {
		return fmt.Errorf("milvus.address is required")
	}
	if err := o.validateProvider(o.Embedding, "embedding"); err != nil {
		return err
	}
	if err := o.validateProvider(o.Chat, "chat"); err != nil {
		return err
	}
	if o.Sync.ChunkSize <= 0 {
		return fmt.Errorf("sync.chunk-size must be positive")
	}
	if o.Sync.ChunkOverlap >= o.Sync.ChunkSize {
		return fmt.Errorf("sync.chunk-overlap must be smaller than sync.chunk-size")
	}
	if o.Sync.EmbeddingDim <= 0 {
		return fmt.Errorf("sync.embedding-dim must be positive")
	}
	if o.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top-k must be positive")
	}
	if o.Retrieval.MinScore < 0 || o.Retrieval.MinScore > 1 {
		return fmt.Errorf("retrieval.min-score must be in [0,1]")
	}
	return nil
}

func (o *ServerOptions) validateProvider(opts *LLMProviderOptions, prefix string) error {
	if opts.Provider == "" {
		return fmt.Errorf("%s.provider is required", prefix)
	}
	if opts.Model == "" {
		return fmt.Errorf("%s.model is required", prefix)
	}
	if opts.Provider == "openai" && opts.APIKey == "" {
		return fmt.Errorf("%s.api-key is required for openai provider", prefix)
	}
	if opts.Timeout <= 0 {
		return fmt.Errorf("%s.timeout must be positive", prefix)
	}
	return nil
}

// Complete fills in derived defaults.
func (o *ServerOptions) Complete() error {
	if o.Sheets.SheetName == "" {
		o.Sheets.SheetName = "Sheet1"
	}
	if o.Sync.EmbedBatchSize <= 0 {
		o.Sync.EmbedBatchSize = 50
	}
	if o.Sync.EmbedConcurrency <= 0 {
		o.Sync.EmbedConcurrency = 1
	}
	return nil
}
