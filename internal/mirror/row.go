package mirror

import (
	"context"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// RowID identifies a mirrored row. A row starts Pending with a local UUID
// the moment the user creates it, and is promoted to Persisted once the
// backend assigns a real identifier. Operations on a Pending row never
// reach the network; there is no remote row to target yet.
type RowID struct {
	remote int64
	local  string
}

// PendingID allocates a temporary local identifier.
func PendingID() RowID {
	return RowID{local: uuid.NewString()}
}

// PersistedID wraps a backend-assigned identifier.
func PersistedID(id int64) RowID {
	return RowID{remote: id}
}

// Persisted reports whether the row exists remotely.
func (r RowID) Persisted() bool {
	return r.local == ""
}

// Remote returns the backend identifier; only meaningful when Persisted.
func (r RowID) Remote() int64 {
	return r.remote
}

func (r RowID) String() string {
	if r.Persisted() {
		return strconv.FormatInt(r.remote, 10)
	}
	return r.local
}

// fetchGuard orders fetches for a mirror: each new fetch cancels the one
// before it and bumps a generation, and results are applied only while
// their generation is still current. A slow stale response can therefore
// never clobber state produced by a newer request.
type fetchGuard struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// begin supersedes any in-flight fetch and returns the context and
// generation for a new one.
func (g *fetchGuard) begin(parent context.Context) (context.Context, uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	g.cancel = cancel
	g.gen++
	return ctx, g.gen
}

// current reports whether gen is still the newest fetch.
func (g *fetchGuard) current(gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen == gen
}
