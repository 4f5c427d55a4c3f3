package luminus

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/raterudder/luminus/pkg/common"
	"github.com/raterudder/luminus/pkg/log"
)

const (
	entryPath      = "/myluminus/nl/"
	metersPath     = "/myluminus/api/meter-readings/available-sources"
	pricingPath    = "/myluminus/api/price-information"
	logoutPath     = "/myluminus/api/auth/logout"
	identifierPath = "/u/login/identifier"
	passwordPath   = "/u/login/password"
)

// Client talks to My Luminus on behalf of one account. It is safe for
// concurrent use but all network operations are serialized.
type Client struct {
	cfg      Config
	baseURL  *url.URL
	loginURL *url.URL

	// mock is set in mock mode and is read-only afterwards
	mock *mockStore

	mu        sync.Mutex
	transport http.RoundTripper
	jar       http.CookieJar
	// client never follows redirects, loginClient does
	client        *http.Client
	loginClient   *http.Client
	authenticated bool
}

// New returns a client for the given config.
func New(cfg Config) (*Client, error) {
	c := &Client{}
	if err := c.init(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) init(cfg Config) error {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	if cfg.Mock {
		c.mock = newMockStore()
		return nil
	}

	var err error
	if c.baseURL, err = parseBase(cfg.BaseURL); err != nil {
		return err
	}
	if c.loginURL, err = parseBase(cfg.LoginURL); err != nil {
		return err
	}
	c.transport = common.BrowserTransport(cfg.Transport)
	c.newSession()
	return nil
}

// newSession starts over with an empty cookie jar. Both clients share the jar
// so cookies set during login are sent with data requests.
func (c *Client) newSession() {
	c.jar = common.NewCookieJar()
	c.client = &http.Client{
		Transport: c.transport,
		Jar:       c.jar,
		Timeout:   c.cfg.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	c.loginClient = &http.Client{
		Transport: c.transport,
		Jar:       c.jar,
		Timeout:   c.cfg.LoginTimeout,
	}
	c.authenticated = false
}

// Mock reports whether the client serves fixture data.
func (c *Client) Mock() bool {
	return c.mock != nil
}

// Authenticated reports whether the client currently holds a logged in
// session.
func (c *Client) Authenticated() bool {
	if c.mock != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// ensureAuthenticated logs in unless there already is a session. The caller
// must hold c.mu.
func (c *Client) ensureAuthenticated(ctx context.Context) error {
	if c.mock != nil || c.authenticated {
		return nil
	}
	if err := c.login(ctx); err != nil {
		return err
	}
	c.authenticated = true
	return nil
}

// invalidate marks the session as logged out. The caller must hold c.mu.
func (c *Client) invalidate() {
	c.authenticated = false
}

// Logout ends the remote session. The session is dropped locally whatever
// the outcome and only a timeout is reported back.
func (c *Client) Logout(ctx context.Context) error {
	if c.mock != nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.authenticated {
		return nil
	}

	u := c.baseURL.JoinPath(logoutPath).String()
	log.Ctx(ctx).InfoContext(ctx, "logging out of luminus")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	var resp *http.Response
	if err == nil {
		resp, err = c.client.Do(req)
	}
	c.invalidate()
	c.newSession()

	if err != nil {
		if isTimeout(err) {
			return &ConnectionError{URL: u, Timeout: true, Err: err}
		}
		log.Ctx(ctx).WarnContext(ctx, "luminus logout failed", slog.Any("error", err))
		return nil
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		log.Ctx(ctx).WarnContext(ctx, "luminus logout response error", slog.String("url", u), slog.Int("status", resp.StatusCode))
	}
	return nil
}

// drain discards the rest of the body so the connection can be reused.
func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}
