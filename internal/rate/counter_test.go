package rate

import (
	"errors"
	"testing"
	"time"

	"github.com/botgate/botgate/internal/testutil"
	"github.com/rs/zerolog"
)

func newTestCounter() (*Counter, *testutil.MockStore) {
	store := testutil.NewMockStore()
	return NewCounter(store, zerolog.Nop()), store
}

func TestWithinLimitThenExceeded(t *testing.T) {
	c, _ := newTestCounter()
	const limit = 5

	for i := 0; i < limit; i++ {
		if !c.CheckAndIncrement("default", "1.2.3.4", limit) {
			t.Fatalf("call %d should be within limit", i+1)
		}
	}
	if c.CheckAndIncrement("default", "1.2.3.4", limit) {
		t.Fatal("limit+1-th call should exceed")
	}
	// Keeps flagging after the limit; each call still counts.
	if c.CheckAndIncrement("default", "1.2.3.4", limit) {
		t.Fatal("limit+2-th call should exceed")
	}
}

func TestCountersAreIndependent(t *testing.T) {
	c, _ := newTestCounter()
	const limit = 1

	if !c.CheckAndIncrement("default", "1.1.1.1", limit) {
		t.Fatal("first call for IP A should pass")
	}
	if !c.CheckAndIncrement("default", "2.2.2.2", limit) {
		t.Fatal("IP B shares no state with IP A")
	}
	if !c.CheckAndIncrement("other", "1.1.1.1", limit) {
		t.Fatal("sites share no state")
	}
	if c.CheckAndIncrement("default", "1.1.1.1", limit) {
		t.Fatal("second call for IP A should exceed")
	}
}

func TestNewWindowResets(t *testing.T) {
	c, _ := newTestCounter()
	base := time.Now()
	c.now = func() time.Time { return base }
	const limit = 2

	c.CheckAndIncrement("default", "3.3.3.3", limit)
	c.CheckAndIncrement("default", "3.3.3.3", limit)
	if c.CheckAndIncrement("default", "3.3.3.3", limit) {
		t.Fatal("third call in window should exceed")
	}

	// Next hour bucket: count resets to zero.
	c.now = func() time.Time { return base.Add(time.Hour) }
	if !c.CheckAndIncrement("default", "3.3.3.3", limit) {
		t.Fatal("new window should reset the counter")
	}
}

func TestPeekDoesNotMutate(t *testing.T) {
	c, store := newTestCounter()
	const limit = 1

	if !c.Peek("default", "4.4.4.4", limit) {
		t.Fatal("peek on empty state should be within limit")
	}
	if store.Len() != 0 {
		t.Fatal("peek must not write")
	}

	c.CheckAndIncrement("default", "4.4.4.4", limit)
	raw, _ := store.Get("rate:default:4.4.4.4")

	if c.Peek("default", "4.4.4.4", limit) {
		t.Fatal("peek should report would-exceed")
	}
	after, _ := store.Get("rate:default:4.4.4.4")
	if string(raw) != string(after) {
		t.Fatal("peek mutated stored state")
	}
}

func TestCorruptStateResets(t *testing.T) {
	c, store := newTestCounter()
	if err := store.Set("rate:default:5.5.5.5", []byte("garbage")); err != nil {
		t.Fatal(err)
	}
	if !c.CheckAndIncrement("default", "5.5.5.5", 1) {
		t.Fatal("corrupt state should read as zero")
	}
}

func TestFailsOpenOnStoreError(t *testing.T) {
	c, store := newTestCounter()

	// Fill the window.
	c.CheckAndIncrement("default", "6.6.6.6", 1)

	store.SetError("Get", errors.New("store down"))
	if !c.CheckAndIncrement("default", "6.6.6.6", 1) {
		t.Fatal("store error must read as not rate limited")
	}
}
