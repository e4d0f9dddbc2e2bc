// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the literature-manager CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/literature-manager/internal/secrets"
	"github.com/pdiddy/literature-manager/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from .secrets/ and .env at startup.
var loadedSecrets map[string]string

// secretDefault returns fallback when set, otherwise the secret value for key.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	return loadedSecrets[key]
}

// replacer maps config keys to environment variable suffixes.
var replacer = strings.NewReplacer(".", "_")

// rootCmd is the base command for the literature-manager CLI.
var rootCmd = &cobra.Command{
	Use:   "literature-manager",
	Short: "File scientific PDFs into a topic-organized library",
	Long: `literature-manager watches an inbox of PDFs, works out what each paper is
(DOI lookup, embedded metadata, then LLM parsing), classifies it against a
fixed topic taxonomy, and files it under by-topic/ with a consistent
"Author, Year - Title.pdf" name. Uncertain papers wait in recent/ for
review; every action is recorded in an append-only log and a JSON index
keyed by content hash.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		env, err := secrets.LoadDotenv(".env")
		if err != nil {
			return err
		}
		loadedSecrets = secrets.Merge(dir, env)
		if len(loadedSecrets) > 0 {
			keys := make([]string, 0, len(loadedSecrets))
			for k := range loadedSecrets {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			slog.Debug("loaded secrets", "keys", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initLogging, initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./literature-manager.yaml or ~/.config/literature-manager/literature-manager.yaml)")
	rootCmd.PersistentFlags().String("root", "", "library root directory (overrides library.root)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log diagnostic detail to stderr")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	_ = viper.BindPFlag("library.root", rootCmd.PersistentFlags().Lookup("root"))
}

func initLogging() {
	level := slog.LevelInfo
	if v, _ := rootCmd.PersistentFlags().GetBool("verbose"); v {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("literature-manager")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "literature-manager"))
		}
	}

	viper.SetEnvPrefix("LITERATURE_MANAGER")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	if err := registerDefaults(types.DefaultConfig()); err != nil {
		slog.Warn("registering config defaults", "error", err)
	}

	if err := viper.ReadInConfig(); err == nil {
		slog.Debug("using config file", "path", viper.ConfigFileUsed())
	}
}

// registerDefaults walks the YAML form of cfg and registers every leaf as
// a viper default, so environment overrides resolve for every key.
func registerDefaults(cfg types.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return err
	}
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			key := prefix + k
			if sub, ok := v.(map[string]any); ok {
				walk(key+".", sub)
				continue
			}
			viper.SetDefault(key, v)
		}
	}
	walk("", tree)
	// Keys omitted from YAML when empty still need env bindings.
	for _, k := range []string{"ai.api_key", "http.mailto", "zotero.api_key", "zotero.user_id"} {
		_ = viper.BindEnv(k)
	}
	return nil
}

// loadConfig decodes the merged configuration, fills credentials from
// secrets and validates the result.
func loadConfig() (types.Config, error) {
	cfg := types.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}
	cfg.AI.APIKey = secretDefault(secrets.AnthropicAPIKey, firstNonEmpty(cfg.AI.APIKey, os.Getenv("ANTHROPIC_API_KEY")))
	cfg.HTTP.Mailto = secretDefault(secrets.CrossrefMailto, cfg.HTTP.Mailto)
	cfg.Zotero.APIKey = secretDefault(secrets.ZoteroAPIKey, cfg.Zotero.APIKey)
	cfg.Zotero.UserID = secretDefault(secrets.ZoteroUserID, cfg.Zotero.UserID)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
