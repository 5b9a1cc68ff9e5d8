// Command fake_ads seeds a test ad inventory directory with a mix of clean,
// scammy and counterfeit listings so scans have something to find.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/openlistings/moderation/internal/config"
	"github.com/openlistings/moderation/internal/models"
	"github.com/openlistings/moderation/internal/observability"
)

var (
	count    = flag.Int("count", 50, "number of ads to generate")
	badRatio = flag.Float64("bad-ratio", 0.2, "fraction of ads that should trip moderation rules")
	seed     = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
)

var cleanTitles = []string{
	"Blue running shoes, size 10",
	"Garden table, solid oak",
	"Mountain bike, 26 inch, recently serviced",
	"Two-seater sofa, light grey",
	"Baby stroller, foldable",
	"Bookshelf, white, 5 shelves",
	"Espresso machine, barely used",
}

var cleanDescriptions = []string{
	"Barely used, great condition",
	"Minor scratches, works perfectly",
	"Pick up only, cash on collection",
	"Selling due to move, open to offers",
	"Comes with original packaging",
}

var badTitles = []string{
	"FREE IPHONE CLICK HERE http://bit.ly/win",
	"Guaranteed income working from home $500/day",
	"Rolex Submariner replica, aaa quality",
	"Counterfeit designer bags, best prices",
	"100% FREE LAPTOP ACT NOW!!!",
}

var companies = []string{"acme-sports", "green-garden", "city-movers", "shady-deals", "bargain-hut"}
var categories = []string{"fashion", "furniture", "electronics", "sports", "kids"}

func main() {
	flag.Parse()

	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	if err := os.MkdirAll(cfg.InventoryDir, 0o755); err != nil {
		logger.Fatal("create inventory dir", zap.Error(err))
	}

	r := rand.New(rand.NewSource(*seed))
	now := time.Now()

	var bad int
	for i := 0; i < *count; i++ {
		created := now.Add(-time.Duration(r.Intn(72)) * time.Hour)
		ad := models.Ad{
			ID:          models.NewAdID(created),
			CompanySlug: companies[r.Intn(len(companies))],
			CategoryID:  categories[r.Intn(len(categories))],
			CreatedAt:   created,
			Status:      models.AdStatusActive,
		}
		if r.Float64() < *badRatio {
			ad.Title = badTitles[r.Intn(len(badTitles))]
			bad++
		} else {
			ad.Title = cleanTitles[r.Intn(len(cleanTitles))]
			ad.Description = cleanDescriptions[r.Intn(len(cleanDescriptions))]
		}

		data, err := json.MarshalIndent(ad, "", "  ")
		if err != nil {
			logger.Fatal("marshal ad", zap.Error(err))
		}
		path := filepath.Join(cfg.InventoryDir, ad.ID+".json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			logger.Fatal("write ad file", zap.String("path", path), zap.Error(err))
		}
	}

	logger.Info("inventory seeded",
		zap.String("dir", cfg.InventoryDir),
		zap.Int("total", *count),
		zap.Int("bad", bad))
}
