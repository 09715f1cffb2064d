package relay

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewStreamID returns a ULID used as a streaming session id.
// ULIDs are lexicographically sortable, which keeps session logs greppable
// in arrival order.
func NewStreamID(now time.Time) string {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		// rand failure is effectively unreachable; fall back to a
		// timestamp-only id rather than error on a logging concern.
		return fmt.Sprintf("sess_%d", now.UnixNano())
	}
	return id.String()
}

// SynthesizeMessageID builds the fallback message id used when the upstream
// payload carries none. The msg_<unixms>_<senderID> shape is wire-stable:
// browser clients key optimistic UI updates off it.
func SynthesizeMessageID(now time.Time, senderID string) string {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return fmt.Sprintf("msg_%d_%s", now.UnixMilli(), senderID)
}
