// Package dlq preserves payloads rejected at ingress so operators can
// replay them. Rejections are not events: nothing was inserted, so nothing
// else records them.
package dlq

import (
	"context"
	"time"
)

// Entry is one rejected payload.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"`
	Reason    string    `json:"reason"`
	Error     string    `json:"error"`
	Payload   []byte    `json:"payload"`
}

// Writer records rejected payloads. A nil Writer is valid and drops them.
type Writer interface {
	Write(ctx context.Context, entry *Entry) error
}
