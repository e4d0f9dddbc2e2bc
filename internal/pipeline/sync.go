// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pdiddy/literature-manager/internal/index"
)

// SyncResult counts a mirror pass over the Index.
type SyncResult struct {
	Synced  int
	Skipped int
	Failed  int
}

// Sync mirrors Index records to the reference manager in hash order and
// stores the returned item keys. Records that already carry a key are
// skipped unless force is set; records whose file is gone are skipped.
// A mirror error for which stop reports true ends the pass and is
// returned.
func (p *Processor) Sync(ctx context.Context, force bool, stop func(error) bool) (SyncResult, error) {
	var res SyncResult
	if p.Mirror == nil {
		return res, errors.New("no reference manager configured")
	}
	recs, err := p.Index.Load()
	if err != nil {
		return res, err
	}
	hashes := recs.Hashes()
	sort.Strings(hashes)

	keys := map[string]string{}
	for _, h := range hashes {
		if ctx.Err() != nil {
			break
		}
		rec := recs[h]
		if rec.ZoteroKey != "" && !force {
			res.Skipped++
			continue
		}
		path := p.Layout.Abs(rec.Filepath)
		if _, err := os.Stat(path); err != nil {
			fmt.Fprintf(p.out(), "⚠ Skipping %s: file missing\n", filepath.Base(rec.Filepath))
			res.Skipped++
			continue
		}
		key, err := p.Mirror.Upsert(ctx, rec, path)
		if err != nil {
			res.Failed++
			fmt.Fprintf(p.out(), "✗ %s: %v\n", abbreviate(rec.Title, 60), err)
			if stop != nil && stop(err) {
				err = fmt.Errorf("sync stopped: %w", err)
				return res, errors.Join(err, p.storeKeys(keys))
			}
			continue
		}
		keys[h] = key
		res.Synced++
		fmt.Fprintf(p.out(), "✓ %s → %s\n", abbreviate(rec.Title, 60), key)
	}

	err = p.storeKeys(keys)
	fmt.Fprintf(p.out(), "Sync summary: %d synced, %d skipped, %d failed\n", res.Synced, res.Skipped, res.Failed)
	return res, err
}

func (p *Processor) storeKeys(keys map[string]string) error {
	if len(keys) == 0 {
		return nil
	}
	err := p.Index.Update(func(recs index.Records) error {
		for h, k := range keys {
			if r, ok := recs[h]; ok {
				r.ZoteroKey = k
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storing item keys: %w", err)
	}
	if p.Catalog != nil {
		recs, lerr := p.Index.Load()
		if lerr != nil {
			p.logger().Warn("catalog not updated", "error", lerr)
			return nil
		}
		for h := range keys {
			if r, ok := recs[h]; ok {
				if cerr := p.Catalog.Upsert(r); cerr != nil {
					p.logger().Warn("catalog update failed", "hash", h, "error", cerr)
				}
			}
		}
	}
	return nil
}
