package fetcher

import (
	"context"
	"strings"
	"time"
)

// policyTimeout bounds the robots.txt fetch independently of the
// per-request fetch timeout.
const policyTimeout = 10 * time.Second

// CheckPolicy fetches https://<domain>/robots.txt and reports whether
// the file exists and whether it allows crawling. The check is
// advisory: FetchAll never consults it, and any failure to retrieve
// the file defaults to "allowed".
func (f *Fetcher) CheckPolicy(ctx context.Context, domain string) PolicyResult {
	result := PolicyResult{
		Domain:         domain,
		AllowsCrawling: true,
	}

	ctx, cancel := context.WithTimeout(ctx, policyTimeout)
	defer cancel()

	target := NewTarget("https://"+domain+"/robots.txt", false)
	fetched := f.http.fetch(ctx, target)
	if !fetched.Success {
		return result
	}

	result.Exists = true
	result.AllowsCrawling = robotsAllow(fetched.Body, agentToken(f.cfg.UserAgent))
	return result
}

// agentToken reduces a full User-Agent string to the product token
// robots.txt groups are matched against (e.g. "pricehound" out of
// "Mozilla/5.0 (compatible; pricehound/1.0; ...)").
func agentToken(userAgent string) string {
	lower := strings.ToLower(userAgent)
	if i := strings.Index(lower, "compatible;"); i >= 0 {
		lower = lower[i+len("compatible;"):]
	}
	lower = strings.TrimSpace(lower)
	for _, sep := range []string{"/", ";", " ", ")"} {
		if i := strings.Index(lower, sep); i >= 0 {
			lower = lower[:i]
		}
	}
	return lower
}

// robotsAllow applies simple disallow-all detection: a "Disallow: /"
// (or empty-path Disallow, which some sites use as a typo for
// disallow-all) inside a user-agent group matching the wildcard or our
// agent token means crawling is disallowed. Anything more granular is
// treated as allowed.
func robotsAllow(content, agent string) bool {
	inMatchingGroup := false

	for _, line := range strings.Split(strings.ToLower(content), "\n") {
		// Strip comments and whitespace.
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		directive, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		directive = strings.TrimSpace(directive)
		value = strings.TrimSpace(value)

		switch directive {
		case "user-agent":
			inMatchingGroup = value == "*" || (agent != "" && strings.Contains(value, agent))
		case "disallow":
			if inMatchingGroup && (value == "/" || value == "") {
				return false
			}
		}
	}

	return true
}
