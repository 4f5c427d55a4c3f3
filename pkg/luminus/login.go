package luminus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/raterudder/luminus/pkg/log"
	"github.com/raterudder/luminus/pkg/metrics"
)

type loginState int

const (
	loginStart loginState = iota
	loginStateTokenAcquired
	loginIdentifierSubmitted
	loginAuthenticated
	loginFailed
)

func (s loginState) String() string {
	switch s {
	case loginStart:
		return "start"
	case loginStateTokenAcquired:
		return "stateTokenAcquired"
	case loginIdentifierSubmitted:
		return "identifierSubmitted"
	case loginAuthenticated:
		return "authenticated"
	case loginFailed:
		return "failed"
	default:
		return fmt.Sprintf("loginState(%d)", int(s))
	}
}

// errorPromptSelector matches the inline error messages the identity
// provider renders next to a rejected field.
const errorPromptSelector = "#error-element-username, #error-element-password, .ulp-input-error-message, .ulp-validator-error, #prompt-alert"

// loginFlow walks through the identity provider's multi step login. The
// state token returned by the entry redirect is sent unchanged with every
// later step.
type loginFlow struct {
	client   *http.Client
	entryURL string
	loginURL *url.URL
	username string
	password string

	state loginState
	token string
	err   error
}

func (c *Client) newLoginFlow() *loginFlow {
	return &loginFlow{
		client:   c.loginClient,
		entryURL: c.baseURL.JoinPath(entryPath).String(),
		loginURL: c.loginURL,
		username: c.cfg.Username,
		password: c.cfg.Password,
		state:    loginStart,
	}
}

// login runs a fresh login flow. The caller must hold c.mu.
func (c *Client) login(ctx context.Context) error {
	log.Ctx(ctx).DebugContext(ctx, "logging in to luminus")
	err := c.newLoginFlow().run(ctx)
	metrics.ObserveLogin(err)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "luminus login failed", slog.Any("error", err))
		return err
	}
	log.Ctx(ctx).InfoContext(ctx, "luminus login success")
	return nil
}

func (f *loginFlow) run(ctx context.Context) error {
	for !f.done() {
		f.step(ctx)
	}
	return f.err
}

func (f *loginFlow) done() bool {
	return f.state == loginAuthenticated || f.state == loginFailed
}

// step advances the flow by exactly one state.
func (f *loginFlow) step(ctx context.Context) {
	prev := f.state
	switch f.state {
	case loginStart:
		token, err := f.acquireStateToken(ctx)
		if err != nil {
			f.fail(err)
			break
		}
		f.token = token
		f.state = loginStateTokenAcquired
	case loginStateTokenAcquired:
		form := url.Values{}
		form.Set("state", f.token)
		form.Set("username", f.username)
		form.Set("js-available", "false")
		form.Set("webauthn-available", "false")
		form.Set("is-brave", "false")
		form.Set("webauthn-platform-available", "false")
		form.Set("action", "default")
		if err := f.submit(ctx, "identifier", identifierPath, form); err != nil {
			f.fail(err)
			break
		}
		f.state = loginIdentifierSubmitted
	case loginIdentifierSubmitted:
		form := url.Values{}
		form.Set("state", f.token)
		form.Set("username", f.username)
		form.Set("password", f.password)
		form.Set("action", "default")
		if err := f.submit(ctx, "password", passwordPath, form); err != nil {
			f.fail(err)
			break
		}
		f.state = loginAuthenticated
	default:
		return
	}
	log.Ctx(ctx).DebugContext(ctx, "luminus login step", slog.String("from", prev.String()), slog.String("to", f.state.String()))
}

func (f *loginFlow) fail(err error) {
	f.state = loginFailed
	f.err = err
}

// acquireStateToken loads the entry page and reads the state token from the
// Location of the last redirect.
func (f *loginFlow) acquireStateToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.entryURL, nil)
	if err != nil {
		return "", connectionError(f.entryURL, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", connectionError(f.entryURL, err)
	}
	defer drain(resp)

	// resp.Request.Response is the redirect that led to the final request
	if resp.Request == nil || resp.Request.Response == nil {
		return "", &AuthError{Step: "entry", StatusCode: resp.StatusCode, Message: "entry page did not redirect"}
	}
	loc, err := resp.Request.Response.Location()
	if err != nil {
		return "", &AuthError{Step: "entry", Message: "redirect without location", Err: err}
	}
	token := loc.Query().Get("state")
	if token == "" {
		return "", &AuthError{Step: "entry", Message: "missing state token"}
	}
	return token, nil
}

func (f *loginFlow) stepURL(path string) (string, string) {
	u := f.loginURL.JoinPath(path)
	referer := u.String() + "?state=" + f.token
	u.RawQuery = url.Values{"state": {f.token}}.Encode()
	return u.String(), referer
}

func (f *loginFlow) submit(ctx context.Context, step, path string, form url.Values) error {
	u, referer := f.stepURL(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return connectionError(u, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", f.loginURL.Scheme+"://"+f.loginURL.Host)
	req.Header.Set("Referer", referer)

	resp, err := f.client.Do(req)
	if err != nil {
		return connectionError(u, err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return &AuthError{
			Step:       step,
			StatusCode: resp.StatusCode,
			Message:    errorPrompt(resp.Body),
		}
	}
	return nil
}

// errorPrompt returns the first inline error message found in an HTML login
// page, or an empty string.
func errorPrompt(body io.Reader) string {
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(body, 1<<20))
	if err != nil {
		return ""
	}
	var msg string
	doc.Find(errorPromptSelector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		msg = strings.Join(strings.Fields(s.Text()), " ")
		return msg == ""
	})
	return msg
}
