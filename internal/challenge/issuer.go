// Package challenge issues stateless proof-of-JS tokens and serves the
// challenge page that sets them. A token is base64(HMAC-SHA256(secret, ip)):
// purely derivable, so issuance writes no state and verification is a
// recomputation. Tokens carry no expiry; rotation requires a secret change.
package challenge

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/botgate/botgate/internal/browser"
)

// CookieName is the cookie carrying the proof token.
const CookieName = "js_verified"

// Issuer derives and verifies challenge tokens for client IPs.
type Issuer struct {
	secret []byte
}

// NewIssuer creates an Issuer with the given HMAC secret. The secret comes
// from process configuration, never a compiled-in literal.
func NewIssuer(secret []byte) *Issuer {
	return &Issuer{secret: secret}
}

// Issue returns the token for ip.
func (i *Issuer) Issue(ip string) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(ip))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// NeedsChallenge reports whether r lacks a valid proof cookie for ip.
func (i *Issuer) NeedsChallenge(r *http.Request, ip string) bool {
	want := i.Issue(ip)
	for _, c := range r.Cookies() {
		if c.Name != CookieName {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(c.Value), []byte(want)) == 1 {
			return false
		}
	}
	return true
}

// NeedsChallengeWithWhitelist is NeedsChallenge with a browser bypass: when
// the request's User-Agent meets any whitelisted family's minimum version the
// challenge is skipped entirely, regardless of cookie state.
func (i *Issuer) NeedsChallengeWithWhitelist(r *http.Request, ip string, rules []browser.Rule) bool {
	if browser.MeetsMinimum(r.UserAgent(), rules) {
		return false
	}
	return i.NeedsChallenge(r, ip)
}

// WritePage renders the challenge page for ip: the embedded script runs the
// automation probe, sets the proof cookie, and reloads.
func (i *Issuer) WritePage(w http.ResponseWriter, ip string) {
	token := i.Issue(ip)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, pageTemplate, ProbeScript, token)
}

const pageTemplate = `<!DOCTYPE html>
<html><head><script>%s</script></head><body>
<script>
    if (window._checkAutomation) {
        window._checkAutomation().then(function(result) {
            if (result.detected) {
                fetch('/automation-report', {
                    method: 'POST',
                    headers: { 'Content-Type': 'application/json' },
                    body: JSON.stringify({
                        automationDetected: true,
                        score: result.score,
                        checks: result.checks
                    })
                });
            }
        });
    }
    document.cookie = '` + CookieName + `=%s; path=/; SameSite=Strict';
    window.location.reload();
</script>
<noscript>Please enable JavaScript to continue.</noscript>
</body></html>
`
