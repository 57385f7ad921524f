// Package options defines the flag-backed configuration groups for the
// crucible CLI. Each group knows its flags and its validation; config
// file values arrive through the same mapstructure tags via viper.
package options

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/gg/gptr"
	"github.com/spf13/pflag"
)

// Options is the full option tree.
type Options struct {
	Vault     *VaultOptions     `json:"vault"     mapstructure:"vault"`
	TUI       *TUIOptions       `json:"tui"       mapstructure:"tui"`
	LLM       *LLMOptions       `json:"llm"       mapstructure:"llm"`
	Embedding *EmbeddingOptions `json:"embedding" mapstructure:"embedding"`
	MCP       *MCPOptions       `json:"mcp"       mapstructure:"mcp"`
	Log       *LogOptions       `json:"log"       mapstructure:"log"`
}

// NewOptions builds the defaults.
func NewOptions() *Options {
	return &Options{
		Vault:     NewVaultOptions(),
		TUI:       NewTUIOptions(),
		LLM:       NewLLMOptions(),
		Embedding: NewEmbeddingOptions(),
		MCP:       NewMCPOptions(),
		Log:       NewLogOptions(),
	}
}

// AddFlags registers every group on the flag set.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.Vault.AddFlags(fs)
	o.TUI.AddFlags(fs)
	o.LLM.AddFlags(fs)
	o.Embedding.AddFlags(fs)
	o.MCP.AddFlags(fs)
	o.Log.AddFlags(fs)
}

// Validate collects every group's validation errors.
func (o *Options) Validate() []error {
	var errs []error
	errs = append(errs, o.Vault.Validate()...)
	errs = append(errs, o.TUI.Validate()...)
	errs = append(errs, o.Embedding.Validate()...)
	return errs
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".crucible"
	}
	return filepath.Join(home, ".crucible")
}

// VaultOptions locates the vault and its stores.
type VaultOptions struct {
	Dir        string `json:"dir"         mapstructure:"dir"`
	StorePath  string `json:"store-path"  mapstructure:"store-path"`
	MerklePath string `json:"merkle-path" mapstructure:"merkle-path"`
	Watch      bool   `json:"watch"       mapstructure:"watch"`
	Workers    int    `json:"workers"     mapstructure:"workers"`
}

func NewVaultOptions() *VaultOptions {
	return &VaultOptions{
		Dir:        ".",
		StorePath:  filepath.Join(dataDir(), "vault.db"),
		MerklePath: filepath.Join(dataDir(), "merkle.db"),
		Watch:      true,
		Workers:    4,
	}
}

func (o *VaultOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Dir, "vault.dir", o.Dir, "Vault root directory.")
	fs.StringVar(&o.StorePath, "vault.store-path", o.StorePath, "Path of the entity/graph database.")
	fs.StringVar(&o.MerklePath, "vault.merkle-path", o.MerklePath, "Path of the merkle tree store.")
	fs.BoolVar(&o.Watch, "vault.watch", o.Watch, "Watch the vault for changes.")
	fs.IntVar(&o.Workers, "vault.workers", o.Workers, "Concurrent ingestion workers.")
}

func (o *VaultOptions) Validate() []error {
	var errs []error
	if o.Workers <= 0 {
		errs = append(errs, fmt.Errorf("vault.workers must be positive, got %d", o.Workers))
	}
	return errs
}

// TUIOptions configures the chat front end.
type TUIOptions struct {
	SessionDir     string `json:"session-dir"     mapstructure:"session-dir"`
	Shell          string `json:"shell"           mapstructure:"shell"`
	CacheCapacity  int    `json:"cache-capacity"  mapstructure:"cache-capacity"`
	SpillThreshold int    `json:"spill-threshold" mapstructure:"spill-threshold"`
}

func NewTUIOptions() *TUIOptions {
	return &TUIOptions{
		SessionDir:     filepath.Join(dataDir(), "sessions"),
		Shell:          "sh",
		CacheCapacity:  512,
		SpillThreshold: 64 * 1024,
	}
}

func (o *TUIOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.SessionDir, "tui.session-dir", o.SessionDir, "Directory for session artifacts (spills, exports).")
	fs.StringVar(&o.Shell, "tui.shell", o.Shell, "Shell used for ! commands.")
	fs.IntVar(&o.CacheCapacity, "tui.cache-capacity", o.CacheCapacity, "Scroll-back cache capacity.")
	fs.IntVar(&o.SpillThreshold, "tui.spill-threshold", o.SpillThreshold, "Tool output bytes before spilling to disk.")
}

func (o *TUIOptions) Validate() []error {
	var errs []error
	if o.CacheCapacity <= 0 {
		errs = append(errs, fmt.Errorf("tui.cache-capacity must be positive, got %d", o.CacheCapacity))
	}
	return errs
}

// LLMOptions selects the chat model.
type LLMOptions struct {
	Model       string   `json:"model"       mapstructure:"model"`
	Temperature *float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   *int     `json:"max-tokens"  mapstructure:"max-tokens"`
}

func NewLLMOptions() *LLMOptions {
	return &LLMOptions{
		Model:       "default",
		Temperature: gptr.Of(0.7),
		MaxTokens:   gptr.Of(4096),
	}
}

func (o *LLMOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Model, "llm.model", o.Model, "Chat model name.")
}

// EmbeddingOptions configures the embedding provider.
type EmbeddingOptions struct {
	Provider string `json:"provider" mapstructure:"provider"`
	APIKey   string `json:"-"        mapstructure:"api-key"`
	BaseURL  string `json:"base-url" mapstructure:"base-url"`
	Model    string `json:"model"    mapstructure:"model"`
}

func NewEmbeddingOptions() *EmbeddingOptions {
	return &EmbeddingOptions{}
}

func (o *EmbeddingOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Provider, "embedding.provider", o.Provider, "Embedding provider (openai, empty to disable).")
	fs.StringVar(&o.BaseURL, "embedding.base-url", o.BaseURL, "Embedding API base URL.")
	fs.StringVar(&o.Model, "embedding.model", o.Model, "Embedding model name.")
}

func (o *EmbeddingOptions) Validate() []error {
	var errs []error
	switch o.Provider {
	case "", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider %q", o.Provider))
	}
	return errs
}

// MCPOptions locates the MCP server configuration.
type MCPOptions struct {
	ConfigPath string `json:"config-path" mapstructure:"config-path"`
}

func NewMCPOptions() *MCPOptions {
	return &MCPOptions{
		ConfigPath: filepath.Join(dataDir(), "mcp.json"),
	}
}

func (o *MCPOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.ConfigPath, "mcp.config-path", o.ConfigPath, "Path of mcp.json.")
}

// LogOptions configures the log sink.
type LogOptions struct {
	File  string `json:"file"  mapstructure:"file"`
	Debug bool   `json:"debug" mapstructure:"debug"`
}

func NewLogOptions() *LogOptions {
	return &LogOptions{
		File: filepath.Join(dataDir(), "crucible.log"),
	}
}

func (o *LogOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.File, "log.file", o.File, "Log file path.")
	fs.BoolVar(&o.Debug, "log.debug", o.Debug, "Enable debug logging.")
}
