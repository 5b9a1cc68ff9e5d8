// Package inventory reads the listings backend's file-backed ad storage.
// The moderation core never writes ads; it only enumerates them for
// scanning.
package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/openlistings/moderation/internal/models"
	"go.uber.org/zap"
)

// Store enumerates ads for the scanner. Implementations must skip
// individually unreadable ads and fail only when the inventory as a whole
// cannot be read.
type Store interface {
	// ListRecent returns ads created at or after since, newest first,
	// bounded by limit when limit > 0.
	ListRecent(ctx context.Context, since time.Time, limit int) ([]models.Ad, error)
	// ListPriority returns the ads most in need of review, bounded by limit.
	ListPriority(ctx context.Context, limit int) ([]models.Ad, error)
	// ListAll returns every ad, bounded by limit when limit > 0.
	ListAll(ctx context.Context, limit int) ([]models.Ad, error)
}

// PrioritySignals supplies review-priority ordering hints, typically backed
// by Redis report counters. May be nil, in which case priority scans fall
// back to recency ordering.
type PrioritySignals interface {
	PriorityAdIDs(ctx context.Context, limit int) ([]string, error)
}

// DirStore reads one JSON document per ad from a directory tree.
type DirStore struct {
	root    string
	signals PrioritySignals
	logger  *zap.Logger
}

// NewDirStore creates a DirStore rooted at dir. signals may be nil.
func NewDirStore(dir string, signals PrioritySignals, logger *zap.Logger) *DirStore {
	return &DirStore{root: dir, signals: signals, logger: logger}
}

// load reads every ad document under the root. A missing or unreadable root
// is fatal; a malformed individual document is skipped with a warning.
func (s *DirStore) load(ctx context.Context) ([]models.Ad, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read inventory dir %s: %w", s.root, err)
	}

	var ads []models.Ad
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.root, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable ad file", zap.String("path", path), zap.Error(err))
			continue
		}
		var ad models.Ad
		if err := json.Unmarshal(data, &ad); err != nil {
			s.logger.Warn("skipping malformed ad file", zap.String("path", path), zap.Error(err))
			continue
		}
		if ad.ID == "" {
			s.logger.Warn("skipping ad file without id", zap.String("path", path))
			continue
		}
		ads = append(ads, ad)
	}

	sort.Slice(ads, func(i, j int) bool { return ads[i].CreatedAt.After(ads[j].CreatedAt) })
	return ads, nil
}

// ListRecent returns ads created at or after since, newest first.
func (s *DirStore) ListRecent(ctx context.Context, since time.Time, limit int) ([]models.Ad, error) {
	ads, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Ad
	for _, ad := range ads {
		if ad.CreatedAt.Before(since) {
			continue
		}
		out = append(out, ad)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ListPriority returns the ads most in need of review. When priority
// signals are available they drive the ordering; otherwise the most recent
// ads are returned.
func (s *DirStore) ListPriority(ctx context.Context, limit int) ([]models.Ad, error) {
	ads, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	if s.signals != nil {
		ids, err := s.signals.PriorityAdIDs(ctx, limit)
		if err != nil {
			s.logger.Warn("priority signals unavailable, using recency order", zap.Error(err))
		} else if len(ids) > 0 {
			byID := make(map[string]models.Ad, len(ads))
			for _, ad := range ads {
				byID[ad.ID] = ad
			}
			var out []models.Ad
			for _, id := range ids {
				if ad, ok := byID[id]; ok {
					out = append(out, ad)
				}
			}
			// Top up with recent ads not already selected.
			seen := make(map[string]bool, len(out))
			for _, ad := range out {
				seen[ad.ID] = true
			}
			for _, ad := range ads {
				if limit > 0 && len(out) >= limit {
					break
				}
				if !seen[ad.ID] {
					out = append(out, ad)
				}
			}
			if limit > 0 && len(out) > limit {
				out = out[:limit]
			}
			return out, nil
		}
	}

	if limit > 0 && len(ads) > limit {
		ads = ads[:limit]
	}
	return ads, nil
}

// ListAll returns every ad, newest first.
func (s *DirStore) ListAll(ctx context.Context, limit int) ([]models.Ad, error) {
	ads, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ads) > limit {
		ads = ads[:limit]
	}
	return ads, nil
}
