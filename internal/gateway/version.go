package gateway

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/mod/semver"
)

// apiVersionHeader is set by the backend on every response. The value is a
// bare semver string ("1.4.2").
const apiVersionHeader = "X-Api-Version"

// checkAPIVersion warns (once per process) when the backend reports a
// version older than the minimum this client was written against. Older
// backends mostly still work - the order payload is additive - but the
// Idempotency-Key dedupe and timeline fields need the minimum version, so
// the mismatch is worth a log line.
func (c *Client) checkAPIVersion(resp *http.Response) {
	if c.minAPIVersion == "" {
		return
	}
	got := strings.TrimSpace(resp.Header.Get(apiVersionHeader))
	if got == "" {
		return
	}

	gotCanon := canonicalSemver(got)
	minCanon := canonicalSemver(c.minAPIVersion)
	if gotCanon == "" || minCanon == "" {
		return
	}

	if semver.Compare(gotCanon, minCanon) < 0 {
		c.versionWarn.Do(func() {
			c.logger.Warn("backend API older than supported minimum",
				slog.String("backend_version", got),
				slog.String("min_version", c.minAPIVersion),
			)
		})
	}
}

// canonicalSemver normalizes a bare version string to the "vMAJOR.MINOR.PATCH"
// form golang.org/x/mod/semver expects. Returns "" for garbage.
func canonicalSemver(s string) string {
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	if !semver.IsValid(s) {
		return ""
	}
	return semver.Canonical(s)
}
