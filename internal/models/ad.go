package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ad statuses as stored by the listings backend.
const (
	AdStatusActive   = "active"
	AdStatusInactive = "inactive"
	AdStatusPending  = "pending"
)

// Ad represents a single classified listing as read from the ad inventory.
// The moderation core only reads ads; ownership and mutation belong to the
// listings backend.
type Ad struct {
	ID          string    `json:"id"`           // Format: AD-YYYYMM-HHMMSSxxxx-RANDOM
	Title       string    `json:"title"`        // Listing headline shown to buyers.
	Description string    `json:"description"`  // Free-form listing body.
	ImagePaths  []string  `json:"image_paths"`  // Ordered local media file paths.
	CompanySlug string    `json:"company_slug"` // Owning company identifier.
	CategoryID  string    `json:"category_id"`
	CreatedAt   time.Time `json:"created_at"`
	Status      string    `json:"status"` // active, inactive or pending.
}

// NewAdID mints an ad identifier in the inventory's canonical format:
// AD-YYYYMM-HHMMSSxxxx-RANDOM, where xxxx carries sub-second precision and
// RANDOM is an 8-char uppercase suffix.
func NewAdID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("AD-%s-%s%04d-%s",
		now.Format("200601"),
		now.Format("150405"),
		now.Nanosecond()/100000,
		suffix,
	)
}
