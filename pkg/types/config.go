// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// HTTPConfig holds settings for the bibliographic lookup services.
type HTTPConfig struct {
	// Timeout is the per-request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is sent with every request (e.g. "literature-manager/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// Mailto identifies the caller to CrossRef's polite pool.
	Mailto string `json:"mailto,omitempty" yaml:"mailto,omitempty" mapstructure:"mailto"`

	// MaxRetries is the number of attempts for retryable failures (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// RequestsPerSecond bounds the lookup rate.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// AIConfig holds settings for the LLM service.
type AIConfig struct {
	// Model is the Claude model identifier.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey authenticates against the Messages API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxRetries is the number of attempts for transient failures (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// Timeout is the per-request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// LibraryConfig names the library root and the directories and files
// beneath it. Relative entries resolve against Root.
type LibraryConfig struct {
	Root         string `json:"root" yaml:"root" mapstructure:"root"`
	Inbox        string `json:"inbox" yaml:"inbox" mapstructure:"inbox"`
	ByTopic      string `json:"by_topic" yaml:"by_topic" mapstructure:"by_topic"`
	Recent       string `json:"recent" yaml:"recent" mapstructure:"recent"`
	Unknowables  string `json:"unknowables" yaml:"unknowables" mapstructure:"unknowables"`
	Corrupted    string `json:"corrupted" yaml:"corrupted" mapstructure:"corrupted"`
	IndexFile    string `json:"index_file" yaml:"index_file" mapstructure:"index_file"`
	LogFile      string `json:"log_file" yaml:"log_file" mapstructure:"log_file"`
	TaxonomyFile string `json:"taxonomy_file" yaml:"taxonomy_file" mapstructure:"taxonomy_file"`
	CatalogFile  string `json:"catalog_file" yaml:"catalog_file" mapstructure:"catalog_file"`
	LockFile     string `json:"lock_file" yaml:"lock_file" mapstructure:"lock_file"`
}

// Layout is the resolved set of absolute-or-root-relative library paths.
type Layout struct {
	Root        string
	Inbox       string
	ByTopic     string
	Recent      string
	Unknowables string
	Corrupted   string
	Index       string
	Log         string
	Taxonomy    string
	Catalog     string
	Lock        string
}

// Layout resolves every configured entry against Root.
func (c LibraryConfig) Layout() Layout {
	root := c.Root
	if root == "" {
		root = "."
	}
	at := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(root, p)
	}
	return Layout{
		Root:        root,
		Inbox:       at(c.Inbox),
		ByTopic:     at(c.ByTopic),
		Recent:      at(c.Recent),
		Unknowables: at(c.Unknowables),
		Corrupted:   at(c.Corrupted),
		Index:       at(c.IndexFile),
		Log:         at(c.LogFile),
		Taxonomy:    at(c.TaxonomyFile),
		Catalog:     at(c.CatalogFile),
		Lock:        at(c.LockFile),
	}
}

// Dirs lists the directories the library needs on disk.
func (l Layout) Dirs() []string {
	return []string{l.Inbox, l.ByTopic, l.Recent, l.Unknowables, l.Corrupted}
}

// Rel returns path relative to the library root, falling back to path.
func (l Layout) Rel(path string) string {
	rel, err := filepath.Rel(l.Root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// Abs joins a root-relative path onto the library root.
func (l Layout) Abs(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(l.Root, filepath.FromSlash(rel))
}

// FulltextBackend selects how full document text is obtained.
type FulltextBackend string

const (
	FulltextPlain      FulltextBackend = "plain"
	FulltextMarkitdown FulltextBackend = "markitdown"
)

// ExtractionConfig holds settings for the extraction cascade and enrichment.
type ExtractionConfig struct {
	// PreferredMethods is the cascade order.
	PreferredMethods []ExtractionMethod `json:"preferred_methods" yaml:"preferred_methods" mapstructure:"preferred_methods"`

	// LLMMaxChars bounds the page text sent for LLM parsing.
	LLMMaxChars int `json:"llm_max_chars" yaml:"llm_max_chars" mapstructure:"llm_max_chars"`

	// TextPages is how many leading pages are read for DOI search and parsing.
	TextPages int `json:"text_pages" yaml:"text_pages" mapstructure:"text_pages"`

	// AbstractMaxChars bounds the abstract sent for classification and
	// summaries.
	AbstractMaxChars int `json:"abstract_max_chars" yaml:"abstract_max_chars" mapstructure:"abstract_max_chars"`

	DomainAttributes bool `json:"domain_attributes" yaml:"domain_attributes" mapstructure:"domain_attributes"`
	EnhancedSummary  bool `json:"enhanced_summary" yaml:"enhanced_summary" mapstructure:"enhanced_summary"`
	FulltextSummary  bool `json:"fulltext_summary" yaml:"fulltext_summary" mapstructure:"fulltext_summary"`

	FulltextBackend  FulltextBackend `json:"fulltext_backend" yaml:"fulltext_backend" mapstructure:"fulltext_backend"`
	FulltextMaxChars int             `json:"fulltext_max_chars" yaml:"fulltext_max_chars" mapstructure:"fulltext_max_chars"`
	FulltextMinChars int             `json:"fulltext_min_chars" yaml:"fulltext_min_chars" mapstructure:"fulltext_min_chars"`
}

// FilingConfig holds the routing thresholds and naming limits.
type FilingConfig struct {
	// ConfidenceThreshold gates by-topic filing.
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold" mapstructure:"confidence_threshold"`

	// TopicConfidence is assigned to LLM-suggested topics.
	TopicConfidence float64 `json:"topic_confidence" yaml:"topic_confidence" mapstructure:"topic_confidence"`

	// TitleSimilarity is the fuzzy duplicate threshold.
	TitleSimilarity float64 `json:"title_similarity" yaml:"title_similarity" mapstructure:"title_similarity"`

	MaxFilenameLength   int  `json:"max_filename_length" yaml:"max_filename_length" mapstructure:"max_filename_length"`
	MaxTitleWords       int  `json:"max_title_words" yaml:"max_title_words" mapstructure:"max_title_words"`
	RecentRetentionDays int  `json:"recent_retention_days" yaml:"recent_retention_days" mapstructure:"recent_retention_days"`
	CopyToRecent        bool `json:"copy_to_recent" yaml:"copy_to_recent" mapstructure:"copy_to_recent"`
}

// WatchConfig holds the watch-mode debounce settings.
type WatchConfig struct {
	StableSeconds    int           `json:"stable_seconds" yaml:"stable_seconds" mapstructure:"stable_seconds"`
	StabilizeTimeout time.Duration `json:"stabilize_timeout" yaml:"stabilize_timeout" mapstructure:"stabilize_timeout"`
	PollInterval     time.Duration `json:"poll_interval" yaml:"poll_interval" mapstructure:"poll_interval"`
	SweepInterval    time.Duration `json:"sweep_interval" yaml:"sweep_interval" mapstructure:"sweep_interval"`
}

// ZoteroConfig holds the reference-manager mirror settings.
type ZoteroConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	APIKey      string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
	UserID      string `json:"user_id,omitempty" yaml:"user_id,omitempty" mapstructure:"user_id"`
	LibraryType string `json:"library_type" yaml:"library_type" mapstructure:"library_type"`
}

// Config groups every section of the literature manager configuration.
type Config struct {
	Library    LibraryConfig    `json:"library" yaml:"library" mapstructure:"library"`
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction" mapstructure:"extraction"`
	Filing     FilingConfig     `json:"filing" yaml:"filing" mapstructure:"filing"`
	AI         AIConfig         `json:"ai" yaml:"ai" mapstructure:"ai"`
	HTTP       HTTPConfig       `json:"http" yaml:"http" mapstructure:"http"`
	Watch      WatchConfig      `json:"watch" yaml:"watch" mapstructure:"watch"`
	Zotero     ZoteroConfig     `json:"zotero" yaml:"zotero" mapstructure:"zotero"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Library: LibraryConfig{
			Root:         ".",
			Inbox:        "inbox",
			ByTopic:      "by-topic",
			Recent:       "recent",
			Unknowables:  "unknowables",
			Corrupted:    "corrupted",
			IndexFile:    ".literature-index.json",
			LogFile:      ".literature-log.txt",
			TaxonomyFile: "topics.yml",
			CatalogFile:  ".literature-catalog.db",
			LockFile:     ".literature-watch.lock",
		},
		Extraction: ExtractionConfig{
			PreferredMethods: []ExtractionMethod{MethodDOILookup, MethodPDFMetadata, MethodLLMParsing},
			LLMMaxChars:      16000,
			TextPages:        3,
			AbstractMaxChars: 4000,
			DomainAttributes: true,
			EnhancedSummary:  true,
			FulltextSummary:  false,
			FulltextBackend:  FulltextPlain,
			FulltextMaxChars: 25000,
			FulltextMinChars: 500,
		},
		Filing: FilingConfig{
			ConfidenceThreshold: 0.85,
			TopicConfidence:     0.85,
			TitleSimilarity:     0.90,
			MaxFilenameLength:   200,
			MaxTitleWords:       8,
			RecentRetentionDays: 3,
			CopyToRecent:        true,
		},
		AI: AIConfig{
			Model:      "claude-haiku-4-5-20251001",
			MaxRetries: 3,
			Timeout:    60 * time.Second,
		},
		HTTP: HTTPConfig{
			Timeout:           10 * time.Second,
			UserAgent:         "literature-manager/0.1",
			MaxRetries:        3,
			RequestsPerSecond: 5,
		},
		Watch: WatchConfig{
			StableSeconds:    2,
			StabilizeTimeout: 30 * time.Second,
			PollInterval:     time.Second,
			SweepInterval:    time.Hour,
		},
		Zotero: ZoteroConfig{
			LibraryType: "user",
		},
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error

	inUnit := func(name string, v float64) {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", name, v))
		}
	}
	inUnit("filing.confidence_threshold", c.Filing.ConfidenceThreshold)
	inUnit("filing.topic_confidence", c.Filing.TopicConfidence)
	inUnit("filing.title_similarity", c.Filing.TitleSimilarity)

	if len(c.Extraction.PreferredMethods) == 0 {
		errs = append(errs, errors.New("extraction.preferred_methods must list at least one method"))
	}
	seen := make(map[ExtractionMethod]bool)
	for _, m := range c.Extraction.PreferredMethods {
		if !m.Valid() {
			errs = append(errs, fmt.Errorf("extraction.preferred_methods: unknown method %q", m))
			continue
		}
		if seen[m] {
			errs = append(errs, fmt.Errorf("extraction.preferred_methods: %q listed twice", m))
		}
		seen[m] = true
	}

	if c.Extraction.LLMMaxChars <= 0 {
		errs = append(errs, errors.New("extraction.llm_max_chars must be positive"))
	}
	if c.Extraction.TextPages <= 0 {
		errs = append(errs, errors.New("extraction.text_pages must be positive"))
	}
	switch c.Extraction.FulltextBackend {
	case FulltextPlain, FulltextMarkitdown:
	default:
		errs = append(errs, fmt.Errorf("extraction.fulltext_backend: unknown backend %q", c.Extraction.FulltextBackend))
	}
	if c.Filing.MaxFilenameLength < 20 {
		errs = append(errs, fmt.Errorf("filing.max_filename_length must be at least 20, got %d", c.Filing.MaxFilenameLength))
	}
	if c.Filing.MaxTitleWords <= 0 {
		errs = append(errs, errors.New("filing.max_title_words must be positive"))
	}
	if c.Filing.RecentRetentionDays < 0 {
		errs = append(errs, errors.New("filing.recent_retention_days must not be negative"))
	}
	if c.Zotero.Enabled && (c.Zotero.APIKey == "" || c.Zotero.UserID == "") {
		errs = append(errs, errors.New("zotero.enabled requires zotero.api_key and zotero.user_id"))
	}

	return errors.Join(errs...)
}

// ParseMethods converts method names (as given on the command line or in
// YAML) into ExtractionMethods.
func ParseMethods(names []string) ([]ExtractionMethod, error) {
	methods := make([]ExtractionMethod, 0, len(names))
	for _, n := range names {
		m := ExtractionMethod(strings.TrimSpace(strings.ToLower(n)))
		if !m.Valid() {
			return nil, fmt.Errorf("unknown extraction method %q", n)
		}
		methods = append(methods, m)
	}
	return methods, nil
}
