// Package echo suppresses duplicate note deliveries. The bus fans every
// publish back to all subscribers, so a remote player sees its own room-mates'
// notes more than once when transports overlap; the filter deduplicates on a
// session key and a coarse time-bucket key.
package echo

import (
	"strconv"
	"sync"
	"time"

	"github.com/marloweh/tutti/internal/domain"
	"github.com/marloweh/tutti/internal/protocol"
)

// Filter remembers recently seen note identities for a short TTL. Expired
// entries are reclaimed by a periodic sweep rather than a timer per entry.
type Filter struct {
	mu   sync.Mutex
	keys map[string]time.Time

	ttl    time.Duration
	bucket time.Duration
	now    func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func NewFilter(ttl, bucket time.Duration) *Filter {
	if ttl <= 0 {
		ttl = protocol.EchoTTL
	}
	if bucket <= 0 {
		bucket = protocol.EchoBucket
	}

	f := &Filter{
		keys:   make(map[string]time.Time),
		ttl:    ttl,
		bucket: bucket,
		now:    time.Now,
		stop:   make(chan struct{}),
	}

	go f.sweep()

	return f
}

// Accept reports whether the event is the first sighting of its note. A false
// return means an equivalent note was already accepted within the TTL.
func (f *Filter) Accept(event domain.NoteEvent) bool {
	now := f.now()

	sessionKey := event.ParticipantID + "|" + event.SessionID
	bucketKey := event.ParticipantID + "|" + event.PitchName + "|" +
		strconv.FormatInt(now.UnixMilli()/f.bucket.Milliseconds(), 10)

	f.mu.Lock()
	defer f.mu.Unlock()

	if exp, ok := f.keys[sessionKey]; ok && now.Before(exp) {
		return false
	}
	if exp, ok := f.keys[bucketKey]; ok && now.Before(exp) {
		return false
	}

	expiry := now.Add(f.ttl)
	f.keys[sessionKey] = expiry
	f.keys[bucketKey] = expiry

	return true
}

func (f *Filter) sweep() {
	ticker := time.NewTicker(f.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.removeExpired()
		case <-f.stop:
			return
		}
	}
}

func (f *Filter) removeExpired() {
	now := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()

	for key, expiry := range f.keys {
		if now.After(expiry) {
			delete(f.keys, key)
		}
	}
}

// Len reports the number of tracked keys, expired or not.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

func (f *Filter) Close() {
	f.stopOnce.Do(func() {
		close(f.stop)
	})
}
