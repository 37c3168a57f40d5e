package growth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/draftpress/draftpress/internal/domain"
)

// creativeHashLen truncates the hex digest; 24 chars is plenty for the
// per-campaign-per-day dedup space.
const creativeHashLen = 24

// CreativeHash fingerprints a piece of creative for duplicate suppression.
// Deterministic per (campaign, domain, channel, UTC day).
func CreativeHash(campaignID, domainName string, channel domain.Channel, day time.Time) string {
	seed := fmt.Sprintf("%s:%s:%s:%s", campaignID, domainName, channel, day.UTC().Format("2006-01-02"))
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:creativeHashLen]
}
