// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package zotero mirrors filed records into a Zotero library through the
// Web API v3. Items are created or merged, never deleted.
package zotero

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/pdiddy/literature-manager/internal/httputil"
	"github.com/pdiddy/literature-manager/pkg/types"
)

// apiBase is a var so tests can substitute an httptest server.
var apiBase = "https://api.zotero.org"

const (
	apiVersion = "3"
	pageSize   = 100
)

var (
	// ErrAuth means the API key was rejected or lacks write access.
	ErrAuth = errors.New("zotero rejected the API key")

	// ErrNotConfigured means the key or library ID is missing.
	ErrNotConfigured = errors.New("zotero api_key and user_id are required")
)

// Client talks to one Zotero library. It owns the lookup Cache, which
// is filled on first use and kept for the life of the Client.
type Client struct {
	HTTP        *http.Client
	APIKey      string
	MaxAttempts int
	Logger      *slog.Logger

	// prefix is "/users/<id>" or "/groups/<id>".
	prefix  string
	limiter *rate.Limiter

	mu    sync.Mutex
	cache *Cache
}

// NewClient builds a Client for the configured library.
func NewClient(cfg types.ZoteroConfig, httpCfg types.HTTPConfig, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" || cfg.UserID == "" {
		return nil, ErrNotConfigured
	}
	kind := "users"
	if strings.EqualFold(cfg.LibraryType, "group") {
		kind = "groups"
	}
	rps := httpCfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		HTTP:        &http.Client{Timeout: httpCfg.Timeout},
		APIKey:      cfg.APIKey,
		MaxAttempts: httpCfg.MaxRetries,
		Logger:      logger,
		prefix:      "/" + kind + "/" + cfg.UserID,
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}

// writeToken returns a fresh 32-character Zotero-Write-Token.
func writeToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// request describes one API call. Path is relative to the library prefix
// unless Absolute is set.
type request struct {
	Method   string
	Path     string
	Absolute bool
	Body     []byte
	Header   map[string]string
	// Write adds a Zotero-Write-Token.
	Write bool
}

// do sends r and returns the response status and body. 401 and 403 map to
// ErrAuth; other statuses are returned for the caller to judge.
func (c *Client) do(ctx context.Context, r request) (int, http.Header, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, nil, err
		}
	}

	url := r.Path
	if !r.Absolute {
		url = apiBase + c.prefix + r.Path
	}
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, url, body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("creating request: %w", err)
	}
	if !r.Absolute {
		req.Header.Set("Zotero-API-Key", c.APIKey)
		req.Header.Set("Zotero-API-Version", apiVersion)
	}
	if r.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.Write {
		req.Header.Set("Zotero-Write-Token", writeToken())
	}
	for k, v := range r.Header {
		req.Header.Set(k, v)
	}

	resp, err := httputil.DoWithRetry(ctx, c.HTTP, req, c.MaxAttempts)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, resp.Header, nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return resp.StatusCode, resp.Header, data, fmt.Errorf("%w (HTTP %d)", ErrAuth, resp.StatusCode)
	}
	return resp.StatusCode, resp.Header, data, nil
}

// getJSON GETs path and decodes a 200 response into v.
func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	status, _, data, err := c.do(ctx, request{Method: http.MethodGet, Path: path})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("GET %s: HTTP %d", path, status)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// writeResult is the multi-object write response.
type writeResult struct {
	Successful map[string]struct {
		Key string `json:"key"`
	} `json:"successful"`
	Success map[string]string `json:"success"`
	Failed  map[string]struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"failed"`
}

// create POSTs objects to path and returns the key of each, in order.
func (c *Client) create(ctx context.Context, path string, objects ...any) ([]string, error) {
	payload, err := json.Marshal(objects)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", path, err)
	}
	status, _, data, err := c.do(ctx, request{Method: http.MethodPost, Path: path, Body: payload, Write: true})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("POST %s: HTTP %d: %s", path, status, strings.TrimSpace(string(data)))
	}

	var res writeResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decoding write response: %w", err)
	}
	keys := make([]string, len(objects))
	for i := range objects {
		idx := fmt.Sprint(i)
		if f, ok := res.Failed[idx]; ok {
			return nil, fmt.Errorf("POST %s: object %d failed: %s (code %d)", path, i, f.Message, f.Code)
		}
		if s, ok := res.Successful[idx]; ok {
			keys[i] = s.Key
			continue
		}
		if k, ok := res.Success[idx]; ok {
			keys[i] = k
			continue
		}
		return nil, fmt.Errorf("POST %s: no result for object %d", path, i)
	}
	return keys, nil
}
