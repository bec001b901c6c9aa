// Package keyword resolves Temu share links into store keywords. A share
// link redirects to a product page whose URL carries the store's display
// title in a share_title query parameter; the keyword is the first word of
// that decoded title.
package keyword

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Hyllesen/telegram-user-bot/telemetry"
)

// DefaultHost is the only host share links are accepted from.
const DefaultHost = "share.temu.com"

const defaultTimeout = 10 * time.Second

// Browser-looking user agent; the share endpoint blocks obvious bots.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

var shareTitlePattern = regexp.MustCompile(`share_title=([^&]+)`)

// InvalidLinkError marks a URL that can never resolve: wrong host or not a
// parseable absolute URL. Permanent; callers should skip and log.
type InvalidLinkError struct {
	URL    string
	Reason string
}

func (e *InvalidLinkError) Error() string {
	return fmt.Sprintf("invalid share link %q: %s", e.URL, e.Reason)
}

// IsInvalidLink reports whether err is an InvalidLinkError.
func IsInvalidLink(err error) bool {
	var ie *InvalidLinkError
	return errors.As(err, &ie)
}

// Resolver extracts keywords from share links. The zero value is not
// usable; construct with NewResolver.
type Resolver struct {
	Host    string
	Timeout time.Duration

	noRedirect *http.Client
	follow     *http.Client
}

// NewResolver returns a resolver for the default share host with a 10s
// per-call deadline.
func NewResolver() *Resolver {
	return &Resolver{
		Host:       DefaultHost,
		Timeout:    defaultTimeout,
		noRedirect: &http.Client{CheckRedirect: func(req *http.Request, via []*http.Request) error { return http.ErrUseLastResponse }},
		follow:     &http.Client{},
	}
}

// Resolve extracts the keyword from a share link. It validates the host
// before any network call, then issues a single non-following GET: a 3xx
// response with a Location header yields the keyword directly from that
// header. Otherwise it follows redirects fully and parses the first anchor
// element of the landing document. Returns empty with nil error when no
// share_title parameter is present anywhere.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", &InvalidLinkError{URL: rawURL, Reason: "not an absolute URL"}
	}
	if u.Host != r.Host {
		return "", &InvalidLinkError{URL: rawURL, Reason: "host is not " + r.Host}
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if telemetry.ResolveDuration != nil {
			telemetry.ResolveDuration.Observe(time.Since(start).Seconds())
		}
	}()

	resp, err := r.get(ctx, r.noRedirect, rawURL)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if isRedirect(resp.StatusCode) {
		if loc := resp.Header.Get("Location"); loc != "" {
			return FirstTitleWord(loc), nil
		}
		// Redirect without a Location header: fall through to the
		// follow-and-parse path.
	}
	return r.resolveFromBody(ctx, rawURL)
}

func (r *Resolver) resolveFromBody(ctx context.Context, rawURL string) (string, error) {
	resp, err := r.get(ctx, r.follow, rawURL)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse landing page for %s: %w", rawURL, err)
	}
	href, ok := doc.Find("a").First().Attr("href")
	if !ok {
		return "", nil
	}
	return FirstTitleWord(href), nil
}

func (r *Resolver) get(ctx context.Context, client *http.Client, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	return client.Do(req)
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// FirstTitleWord pulls the share_title parameter out of a URL or href
// string, percent-decodes it, and returns its first whitespace-delimited
// token. Percent escapes only: a literal + in the title stays part of the
// keyword. Empty when the parameter is missing or blank.
func FirstTitleWord(s string) string {
	m := shareTitlePattern.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	decoded, err := url.PathUnescape(m[1])
	if err != nil {
		decoded = m[1]
	}
	fields := strings.Fields(decoded)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
