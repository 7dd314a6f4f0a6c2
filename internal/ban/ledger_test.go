package ban

import (
	"errors"
	"testing"
	"time"

	"github.com/botgate/botgate/internal/testutil"
	"github.com/rs/zerolog"
)

func newTestLedger() (*Ledger, *testutil.MockStore) {
	store := testutil.NewMockStore()
	return NewLedger(store, zerolog.Nop()), store
}

func TestBanThenIsBanned(t *testing.T) {
	l, _ := newTestLedger()

	if l.IsBanned("default", "1.2.3.4") {
		t.Fatal("never-banned IP reported banned")
	}

	l.Ban("default", "1.2.3.4", ReasonHoneypot, time.Hour)
	if !l.IsBanned("default", "1.2.3.4") {
		t.Fatal("freshly banned IP not reported banned")
	}

	// Different site is untouched
	if l.IsBanned("other", "1.2.3.4") {
		t.Fatal("ban leaked across sites")
	}
}

func TestExpiryIsLazy(t *testing.T) {
	l, store := newTestLedger()
	base := time.Now()
	l.now = func() time.Time { return base }

	l.Ban("default", "5.6.7.8", ReasonRateLimit, time.Hour)

	// Still banned just before expiry
	l.now = func() time.Time { return base.Add(59 * time.Minute) }
	if !l.IsBanned("default", "5.6.7.8") {
		t.Fatal("ban expired early")
	}

	// Expired: read returns false and deletes the key
	l.now = func() time.Time { return base.Add(2 * time.Hour) }
	if l.IsBanned("default", "5.6.7.8") {
		t.Fatal("expired ban still reported")
	}
	if store.Has("ban:default:5.6.7.8") {
		t.Fatal("expired ban record not lazily deleted")
	}
}

func TestRebanReplacesExpiry(t *testing.T) {
	l, _ := newTestLedger()
	base := time.Now()
	l.now = func() time.Time { return base }

	l.Ban("default", "1.1.1.1", ReasonBrowser, time.Minute)
	l.Ban("default", "1.1.1.1", ReasonBrowser, time.Hour)

	// Past the first duration but inside the second: still banned.
	l.now = func() time.Time { return base.Add(30 * time.Minute) }
	if !l.IsBanned("default", "1.1.1.1") {
		t.Fatal("re-ban did not replace expiry")
	}
}

func TestUnban(t *testing.T) {
	l, _ := newTestLedger()

	// Unban of a never-banned IP is a no-op
	l.Unban("default", "9.9.9.9")
	if l.IsBanned("default", "9.9.9.9") {
		t.Fatal("unbanned IP reported banned")
	}

	l.Ban("default", "9.9.9.9", ReasonAdmin, time.Hour)
	l.Unban("default", "9.9.9.9")
	if l.IsBanned("default", "9.9.9.9") {
		t.Fatal("IP still banned after unban")
	}
}

func TestCorruptRecordDeleted(t *testing.T) {
	l, store := newTestLedger()
	if err := store.Set("ban:default:2.2.2.2", []byte("not msgpack")); err != nil {
		t.Fatal(err)
	}
	if l.IsBanned("default", "2.2.2.2") {
		t.Fatal("corrupt record reported as ban")
	}
	if store.Has("ban:default:2.2.2.2") {
		t.Fatal("corrupt record not deleted")
	}
}

func TestIsBannedFailsOpen(t *testing.T) {
	l, store := newTestLedger()
	l.Ban("default", "3.3.3.3", ReasonHoneypot, time.Hour)

	store.SetError("Get", errors.New("store down"))
	if l.IsBanned("default", "3.3.3.3") {
		t.Fatal("store error must read as not banned")
	}

	// Store recovers: ban is still there
	if !l.IsBanned("default", "3.3.3.3") {
		t.Fatal("ban lost after transient store error")
	}
}

func TestBanWriteFailureSwallowed(t *testing.T) {
	l, store := newTestLedger()
	store.SetError("Set", errors.New("disk full"))
	l.Ban("default", "4.4.4.4", ReasonAutomation, time.Hour) // must not panic
	if l.IsBanned("default", "4.4.4.4") {
		t.Fatal("failed write should leave IP unbanned")
	}
}

func TestListAndActiveCount(t *testing.T) {
	l, _ := newTestLedger()
	base := time.Now()
	l.now = func() time.Time { return base }

	l.Ban("default", "1.0.0.1", ReasonHoneypot, time.Hour)
	l.Ban("default", "1.0.0.2", ReasonMazeCrawler, time.Minute)
	l.Ban("other", "1.0.0.3", ReasonAdmin, time.Hour)

	entries, err := l.List("default")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].IP != "1.0.0.1" || entries[0].Reason != ReasonHoneypot {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}

	// One ban aged out (not yet lazily deleted) still lists, but is not active.
	l.now = func() time.Time { return base.Add(30 * time.Minute) }
	if got := l.ActiveCount("default"); got != 1 {
		t.Fatalf("ActiveCount = %d, want 1", got)
	}
}
