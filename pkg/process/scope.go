package process

import (
	"log/slog"
	"net/url"
	"strings"
)

// IsInScope reports whether candidate may be crawled for baseDomain: it must
// carry a host equal to baseDomain (port included, no subdomains) and an
// http or https scheme.
func IsInScope(candidate, baseDomain string) bool {
	u, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	if u.Host == "" || u.Host != baseDomain {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// BaseDomain returns the network authority of rootURL, the value every
// discovered link is compared against.
func BaseDomain(rootURL string) (string, error) {
	u, err := url.Parse(rootURL)
	if err != nil {
		return "", err
	}
	return u.Host, nil
}

// DomainSlug turns a domain into a filename-safe key, site.example -> site_example.
func DomainSlug(domain string) string {
	return strings.NewReplacer(".", "_", ":", "_").Replace(domain)
}

// Scope decides whether a link found on a page joins the crawl.
type Scope struct {
	BaseDomain string
	Robots     *RobotsChecker
}

// Admit resolves href against pageURL, normalizes it and applies the
// domain and robots rules. It returns the canonical URL and true when the
// link is in scope.
func (s *Scope) Admit(pageURL, href string) (string, bool) {
	abs := Resolve(pageURL, href)
	if abs == "" {
		return "", false
	}
	return s.AdmitAbsolute(abs)
}

// AdmitAbsolute is Admit for a link that is already absolute.
func (s *Scope) AdmitAbsolute(abs string) (string, bool) {
	normalized, err := Normalize(abs)
	if err != nil {
		slog.Debug("scope rejected: normalize failed", slog.String("url", abs), slog.Any("err", err))
		return "", false
	}

	if !IsInScope(normalized, s.BaseDomain) {
		slog.Debug("scope rejected", slog.String("url", normalized))
		return "", false
	}

	if s.Robots != nil && !s.Robots.Allowed(normalized) {
		slog.Info("robots.txt disallowed", slog.String("url", normalized))
		return "", false
	}

	return normalized, true
}
