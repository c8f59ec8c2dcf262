// Package broadcaster fans out structured memory/job events to in-process
// subscribers and to external observers over HTTP: Server-Sent Events and a
// supplemental WebSocket transport. One process per host owns the
// observability HTTP port at a time; the rest forward their local events to
// the owner, falling back to a filesystem event-file exchange when the
// owner is briefly unreachable.
package broadcaster

import (
	"encoding/json"
	"time"

	"github.com/rand/mnemosyne/pkg/types"
)

// Event is one structured notification fanned out to subscribers. ID is
// assigned by the owning Broadcaster on Publish and is monotonically
// increasing, so clients can resume a stream with Last-Event-ID.
type Event struct {
	ID        uint64          `json:"id"`
	Type      types.EventType `json:"type"`
	MemoryID  string          `json:"memory_id,omitempty"`
	Namespace string          `json:"namespace,omitempty"`
	At        time.Time       `json:"at"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// IsHeartbeat reports whether the event is the low-priority liveness signal
// that subscribers hide by default (§4.7's "heartbeats filtered by
// default" rule).
func (e Event) IsHeartbeat() bool {
	return e.Type == types.EventAgentHeartbeat
}
