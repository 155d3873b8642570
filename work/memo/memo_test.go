package memo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRememberAndLookup(t *testing.T) {
	m := New()

	m.Remember("vavoo_rai|abc", "203.0.113.7")
	assert.Equal(t, "203.0.113.7", m.Lookup("vavoo_rai|abc"))
	assert.Equal(t, "", m.Lookup("unknown"))
	assert.Equal(t, 1, m.Len())
}

func TestRemember_IgnoresEmpty(t *testing.T) {
	m := New()

	m.Remember("", "203.0.113.7")
	m.Remember("id", "")
	assert.Equal(t, 0, m.Len())
}

func TestRemember_Overwrites(t *testing.T) {
	m := New()

	m.Remember("id", "203.0.113.7")
	m.Remember("id", "198.51.100.4")
	assert.Equal(t, "198.51.100.4", m.Lookup("id"))
	assert.Equal(t, 1, m.Len())
}

func TestLookup_ExpiredEntry(t *testing.T) {
	m := New()
	m.entries.Store("id", Record{IP: "203.0.113.7", ObservedAt: time.Now().Add(-TTL - time.Second)})

	assert.Equal(t, "", m.Lookup("id"))
	// lookup does not delete, prune does
	assert.Equal(t, 1, m.Len())
}

func TestPrune(t *testing.T) {
	m := New()
	m.entries.Store("old", Record{IP: "203.0.113.7", ObservedAt: time.Now().Add(-TTL - time.Second)})
	m.Remember("fresh", "198.51.100.4")

	m.Prune()
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, "198.51.100.4", m.Lookup("fresh"))
}
