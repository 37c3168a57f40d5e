package scheduler

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/draftpress/draftpress/internal/domain"
)

// stream is a deterministic random stream derived from a SHA-256 seed. The
// same seed always yields the same draws, which is what makes the scheduler
// idempotent within a day.
type stream struct {
	state [32]byte
	pos   int
}

// newStream hashes the seed into the initial state.
func newStream(seed string) *stream {
	return &stream{state: sha256.Sum256([]byte(seed))}
}

// Float returns the next draw in [0, 1). The state is rehashed when the
// current block is spent.
func (s *stream) Float() float64 {
	if s.pos+8 > len(s.state) {
		s.state = sha256.Sum256(s.state[:])
		s.pos = 0
	}
	v := binary.BigEndian.Uint64(s.state[s.pos:])
	s.pos += 8
	return float64(v>>11) / float64(uint64(1)<<53)
}

// IntN returns the next draw in [0, n).
func (s *stream) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.Float() * float64(n))
}

// scheduleSeed is stable per domain and UTC day.
func scheduleSeed(d *domain.Domain, day time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s", d.ID, d.Name, d.Bucket, day.UTC().Format("2006-01-02"))
}
