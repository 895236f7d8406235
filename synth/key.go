package synth

import (
	"time"

	"github.com/google/uuid"
)

// NewKey returns an object key that cannot collide across concurrent calls:
// a UTC timestamp for ordering in bucket listings plus a random UUID.
func NewKey(now time.Time, ext string) string {
	return now.UTC().Format("20060102T150405.000Z") + "-" + uuid.NewString() + ext
}
