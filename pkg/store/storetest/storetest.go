// Package storetest opens in-memory stores for tests.
package storetest

import (
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"

	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/store"
	"github.com/yz174/kliq/pkg/timeutil"
)

// Epoch is the start time of clocks handed out by Open.
var Epoch = time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)

// Open returns a store on an in-memory filesystem driven by a fake clock.
// n may be nil.
func Open(t testing.TB, n store.Notifier) (*store.Store, *timeutil.Fake) {
	t.Helper()
	clock := timeutil.NewFake(Epoch)
	s, err := store.Open("db", store.Options{FS: vfs.NewMem(), Clock: clock, Notifier: n})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

// User creates a user whose external id and name are both name.
func User(t testing.TB, s *store.Store, name string) models.User {
	t.Helper()
	u, _, err := s.UpsertUser(store.UserProfile{ExternalID: "ext-" + name, Name: name, Email: name + "@example.com"})
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

// Recorder is a Notifier that remembers published topics.
type Recorder struct {
	Topics []string
}

func (r *Recorder) Publish(topics ...string) { r.Topics = append(r.Topics, topics...) }

// Reset clears recorded topics.
func (r *Recorder) Reset() { r.Topics = nil }
