package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/botgate/botgate/internal/ban"
	"github.com/botgate/botgate/internal/config"
	"github.com/botgate/botgate/internal/events"
	"github.com/botgate/botgate/internal/maze"
	"github.com/botgate/botgate/internal/testutil"
	"github.com/rs/zerolog"
)

const (
	site   = "default"
	apiKey = "sekret"
)

type fixture struct {
	mux    *http.ServeMux
	ledger *ban.Ledger
	store  *testutil.MockStore
}

func newFixture(key string) *fixture {
	store := testutil.NewMockStore()
	ledger := ban.NewLedger(store, zerolog.Nop())
	eventLog := events.NewLog(store, zerolog.Nop())
	sites := config.NewSites(store, false, zerolog.Nop())
	tracker := maze.NewTracker(store, ledger, eventLog, zerolog.Nop())

	api := New(ledger, eventLog, sites, tracker, site, key, 100, 100, zerolog.Nop())
	mux := http.NewServeMux()
	api.Register(mux)
	return &fixture{mux: mux, ledger: ledger, store: store}
}

func (f *fixture) do(method, path, body string, authed bool) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if authed {
		r.Header.Set("X-Api-Key", apiKey)
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, r)
	return w
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(apiKey)

	if w := f.do(http.MethodGet, "/admin/bans", "", false); w.Code != http.StatusUnauthorized {
		t.Fatalf("no key: status = %d, want 401", w.Code)
	}

	r := httptest.NewRequest(http.MethodGet, "/admin/bans", nil)
	r.Header.Set("X-Api-Key", "wrong")
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status = %d, want 401", w.Code)
	}
}

func TestBearerTokenAccepted(t *testing.T) {
	f := newFixture(apiKey)
	r := httptest.NewRequest(http.MethodGet, "/admin/bans", nil)
	r.Header.Set("Authorization", "Bearer "+apiKey)
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestDisabledWithoutKey(t *testing.T) {
	f := newFixture("")
	if w := f.do(http.MethodGet, "/admin/bans", "", true); w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 with no configured key", w.Code)
	}
}

func TestBanLifecycle(t *testing.T) {
	f := newFixture(apiKey)

	w := f.do(http.MethodPost, "/admin/bans", `{"ip":"1.2.3.4","reason":"admin"}`, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("ban: status = %d, want 201", w.Code)
	}
	if !f.ledger.IsBanned(site, "1.2.3.4") {
		t.Fatal("ban not recorded")
	}

	w = f.do(http.MethodGet, "/admin/bans", "", true)
	var bans []banResponse
	if err := json.NewDecoder(w.Body).Decode(&bans); err != nil {
		t.Fatal(err)
	}
	if len(bans) != 1 || bans[0].IP != "1.2.3.4" || bans[0].Reason != "admin" {
		t.Fatalf("unexpected listing: %+v", bans)
	}

	w = f.do(http.MethodPost, "/admin/unban?ip=1.2.3.4", "", true)
	if w.Code != http.StatusNoContent {
		t.Fatalf("unban: status = %d, want 204", w.Code)
	}
	if f.ledger.IsBanned(site, "1.2.3.4") {
		t.Fatal("still banned after unban")
	}
}

func TestBanRequestValidation(t *testing.T) {
	f := newFixture(apiKey)
	for _, body := range []string{"", "not json", `{"reason":"admin"}`} {
		if w := f.do(http.MethodPost, "/admin/bans", body, true); w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, w.Code)
		}
	}
}

func TestConfigPatch(t *testing.T) {
	f := newFixture(apiKey)

	w := f.do(http.MethodPost, "/admin/config", `{"rate_limit":5,"test_mode":true}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	w = f.do(http.MethodGet, "/admin/config", "", true)
	var cfg config.SiteConfig
	if err := json.NewDecoder(w.Body).Decode(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.RateLimit != 5 || !cfg.TestMode {
		t.Fatalf("patch not persisted: %+v", cfg)
	}
	if cfg.MazeThreshold != config.DefaultSiteConfig().MazeThreshold {
		t.Fatal("unpatched fields must keep their values")
	}
}

func TestConfigPatchValidation(t *testing.T) {
	f := newFixture(apiKey)
	if w := f.do(http.MethodPost, "/admin/config", "not json", true); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestEventsFeed(t *testing.T) {
	f := newFixture(apiKey)
	f.do(http.MethodPost, "/admin/bans", `{"ip":"1.2.3.4"}`, true)

	w := f.do(http.MethodGet, "/admin/events?hours=1", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var feed []events.Entry
	if err := json.NewDecoder(w.Body).Decode(&feed); err != nil {
		t.Fatal(err)
	}
	if len(feed) != 1 || feed[0].Kind != events.KindAdminAction {
		t.Fatalf("unexpected feed: %+v", feed)
	}

	if w := f.do(http.MethodGet, "/admin/events?hours=zero", "", true); w.Code != http.StatusBadRequest {
		t.Fatalf("bad hours: status = %d, want 400", w.Code)
	}
}

func TestAnalytics(t *testing.T) {
	f := newFixture(apiKey)
	f.do(http.MethodPost, "/admin/bans", `{"ip":"1.2.3.4"}`, true)

	w := f.do(http.MethodGet, "/admin/analytics", "", true)
	var out analytics
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.ActiveBans != 1 {
		t.Fatalf("active_bans = %d, want 1", out.ActiveBans)
	}
	if out.EventsByKind[string(events.KindAdminAction)] != 1 {
		t.Fatalf("unexpected event summary: %+v", out.EventsByKind)
	}
}

func TestThrottle(t *testing.T) {
	store := testutil.NewMockStore()
	ledger := ban.NewLedger(store, zerolog.Nop())
	eventLog := events.NewLog(store, zerolog.Nop())
	sites := config.NewSites(store, false, zerolog.Nop())
	tracker := maze.NewTracker(store, ledger, eventLog, zerolog.Nop())
	api := New(ledger, eventLog, sites, tracker, site, apiKey, 1, 1, zerolog.Nop())
	mux := http.NewServeMux()
	api.Register(mux)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodGet, "/admin/bans", nil)
		r.Header.Set("X-Api-Key", apiKey)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", codes[0])
	}
	throttled := false
	for _, c := range codes[1:] {
		if c == http.StatusTooManyRequests {
			throttled = true
		}
	}
	if !throttled {
		t.Fatal("burst of requests must hit the throttle")
	}
}
