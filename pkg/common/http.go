package common

import (
	_ "embed"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

//go:embed VERSION
var version string

// Version returns the release version of this build.
func Version() string {
	return strings.TrimSpace(version)
}

// BrowserHeaders mimic a desktop Firefox navigation. Luminus refuses requests
// that do not look like they come from a browser.
var BrowserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language":           "nl,en-US;q=0.7,en;q=0.3",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Upgrade-Insecure-Requests": "1",
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:140.0) Gecko/20100101 Firefox/140.0",
}

type headerTransport struct {
	transport http.RoundTripper
	headers   map[string]string
}

// RoundTrip implements the http.RoundTripper interface. Headers already set on
// the request win over the defaults.
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original request's headers
	// which might be shared or reused
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return t.transport.RoundTrip(req)
}

// HTTPClient returns a default http client with the Luminus user-agent set
func HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &headerTransport{
			transport: http.DefaultTransport,
			headers:   map[string]string{"User-Agent": "Luminus/" + Version()},
		},
		Timeout: timeout,
	}
}

// BrowserTransport wraps next (or http.DefaultTransport if nil) so every
// request carries BrowserHeaders.
func BrowserTransport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &headerTransport{
		transport: next,
		headers:   BrowserHeaders,
	}
}

// NewCookieJar returns an empty cookie jar that uses the public suffix list so
// cookies set by login.luminus.be are not leaked to unrelated domains.
func NewCookieJar() http.CookieJar {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		// cookiejar.New never returns an error
		panic(err)
	}
	return jar
}
