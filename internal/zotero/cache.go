// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package zotero

import (
	"context"
	"fmt"

	"github.com/pdiddy/literature-manager/internal/doi"
)

// Cache maps DOIs and collection names to Zotero keys for one library.
type Cache struct {
	// Items maps normalized DOI to item key.
	Items map[string]string
	// Collections maps collection name to collection key.
	Collections map[string]string
}

type itemEntry struct {
	Key     string   `json:"key"`
	Version int      `json:"version"`
	Data    itemData `json:"data"`
}

type collectionEntry struct {
	Key  string `json:"key"`
	Data struct {
		Name string `json:"name"`
	} `json:"data"`
}

// Cache returns the lookup cache, loading it on first use. A failed load
// is retried on the next call.
func (c *Client) Cache(ctx context.Context) (*Cache, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache != nil {
		return c.cache, nil
	}

	cache := &Cache{Items: map[string]string{}, Collections: map[string]string{}}
	for start := 0; ; start += pageSize {
		var page []itemEntry
		path := fmt.Sprintf("/items/top?format=json&limit=%d&start=%d", pageSize, start)
		if err := c.getJSON(ctx, path, &page); err != nil {
			return nil, fmt.Errorf("loading items: %w", err)
		}
		for _, it := range page {
			if d := doi.Normalize(it.Data.DOI); d != "" {
				cache.Items[d] = it.Key
			}
		}
		if len(page) < pageSize {
			break
		}
	}
	for start := 0; ; start += pageSize {
		var page []collectionEntry
		path := fmt.Sprintf("/collections?format=json&limit=%d&start=%d", pageSize, start)
		if err := c.getJSON(ctx, path, &page); err != nil {
			return nil, fmt.Errorf("loading collections: %w", err)
		}
		for _, col := range page {
			cache.Collections[col.Data.Name] = col.Key
		}
		if len(page) < pageSize {
			break
		}
	}

	c.cache = cache
	c.logger().Debug("zotero cache loaded", "items", len(cache.Items), "collections", len(cache.Collections))
	return cache, nil
}

// collection returns the key of the named collection, creating it when
// absent.
func (c *Client) collection(ctx context.Context, name string) (string, error) {
	cache, err := c.Cache(ctx)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	key, ok := cache.Collections[name]
	c.mu.Unlock()
	if ok {
		return key, nil
	}

	keys, err := c.create(ctx, "/collections", map[string]any{"name": name})
	if err != nil {
		return "", fmt.Errorf("creating collection %s: %w", name, err)
	}
	c.mu.Lock()
	cache.Collections[name] = keys[0]
	c.mu.Unlock()
	return keys[0], nil
}

func (c *Client) rememberItem(d, key string) {
	if d = doi.Normalize(d); d == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache != nil {
		c.cache.Items[d] = key
	}
}

func (c *Client) lookupItem(d string) (string, bool) {
	if d = doi.Normalize(d); d == "" {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache == nil {
		return "", false
	}
	key, ok := c.cache.Items[d]
	return key, ok
}
