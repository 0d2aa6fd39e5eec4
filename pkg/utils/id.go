package utils

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var idSeq uint64

// GenID generates a unique message ID using the current UTC nanosecond
// timestamp and an atomic sequence number. The format is "msg-<ts>-<seq>".
func GenID() string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("msg-%d-%d", n, s)
}

// GenThreadID generates a unique thread ID. The format is "thread-<ts>-<seq>".
func GenThreadID() string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("thread-%d-%d", n, s)
}

// GenSessionID returns a random session identifier. Sessions are bearer
// credentials so they must not be derivable from timestamps.
func GenSessionID() string {
	return uuid.NewString()
}

// MakeSlug creates a URL-friendly slug from a title and an ID. The full
// timestamp-and-sequence tail of the id keeps slugs unique when titles
// collide, including across process restarts.
func MakeSlug(title, id string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	var b strings.Builder
	lastDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	tail := id
	if i := strings.Index(id, "-"); i >= 0 && i+1 < len(id) {
		tail = id[i+1:]
	}
	if slug == "" {
		return tail
	}
	return slug + "-" + tail
}
