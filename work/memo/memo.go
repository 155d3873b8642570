// Package memo keeps a short-lived map from stream id to the last client IP
// observed for it. It bridges the cases where the resolving step runs without
// direct access to the original request's headers.
package memo

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// TTL is how long an observed IP stays usable. Entries are pruned lazily on
// each stream resolution; no background sweeper runs.
const TTL = 2 * time.Minute

// Record is one observation of a client IP.
type Record struct {
	IP         string
	ObservedAt time.Time
}

// IPMemo is a transient, concurrency-safe stream-id → client-IP map.
type IPMemo struct {
	entries *xsync.MapOf[string, Record]
}

// New creates an empty memo.
func New() *IPMemo {
	return &IPMemo{entries: xsync.NewMapOf[string, Record]()}
}

// Remember stores the IP observed for a stream id. Empty values are ignored.
func (m *IPMemo) Remember(streamID, ip string) {
	if streamID == "" || ip == "" {
		return
	}
	m.entries.Store(streamID, Record{IP: ip, ObservedAt: time.Now()})
}

// Lookup returns the remembered IP for a stream id, or "" when absent or
// older than the TTL.
func (m *IPMemo) Lookup(streamID string) string {
	rec, ok := m.entries.Load(streamID)
	if !ok || time.Since(rec.ObservedAt) > TTL {
		return ""
	}
	return rec.IP
}

// Prune drops every entry older than the TTL.
func (m *IPMemo) Prune() {
	cutoff := time.Now().Add(-TTL)
	m.entries.Range(func(key string, rec Record) bool {
		if rec.ObservedAt.Before(cutoff) {
			m.entries.Delete(key)
		}
		return true
	})
}

// Len returns the current entry count (pruned or not).
func (m *IPMemo) Len() int {
	return m.entries.Size()
}
