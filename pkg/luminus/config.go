package luminus

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/levenlabs/go-lflag"
)

const (
	DefaultBaseURL      = "https://www.luminus.be"
	DefaultLoginURL     = "https://login.luminus.be"
	DefaultTimeout      = 10 * time.Second
	DefaultLoginTimeout = 30 * time.Second
)

// Config holds everything needed to build a Client. Zero values fall back to
// the defaults above.
type Config struct {
	Username string
	Password string
	// Mock serves fixture data and never touches the network.
	Mock bool

	BaseURL      string
	LoginURL     string
	Timeout      time.Duration
	LoginTimeout time.Duration

	// Transport is wrapped with the browser headers, http.DefaultTransport
	// when nil.
	Transport http.RoundTripper
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.LoginURL == "" {
		c.LoginURL = DefaultLoginURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = DefaultLoginTimeout
	}
	return c
}

// Validate ensures the configuration is usable.
func (c Config) Validate() error {
	if c.Mock {
		return nil
	}
	if c.Username == "" {
		return errors.New("luminus-username is required")
	}
	if c.Password == "" {
		return errors.New("luminus-password is required")
	}
	if _, err := parseBase(c.BaseURL); err != nil {
		return fmt.Errorf("failed to parse luminus base url (%s): %w", c.BaseURL, err)
	}
	if _, err := parseBase(c.LoginURL); err != nil {
		return fmt.Errorf("failed to parse luminus login url (%s): %w", c.LoginURL, err)
	}
	return nil
}

func parseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("url must be absolute")
	}
	return u, nil
}

// Configured registers the luminus flags and returns a client that is ready
// once lflag.Configure has run.
func Configured() *Client {
	username := lflag.String("luminus-username", "", "My Luminus account email")
	password := lflag.String("luminus-password", "", "My Luminus account password")
	mock := lflag.Bool("luminus-mock", false, "Serve fixture data instead of calling Luminus")
	baseURL := lflag.String("luminus-base-url", DefaultBaseURL, "Base URL of the My Luminus website")
	loginURL := lflag.String("luminus-login-url", DefaultLoginURL, "Base URL of the Luminus identity provider")
	timeout := lflag.Duration("luminus-timeout", DefaultTimeout, "Timeout for data requests")
	loginTimeout := lflag.Duration("luminus-login-timeout", DefaultLoginTimeout, "Timeout for each login step")

	c := &Client{}

	lflag.Do(func() {
		err := c.init(Config{
			Username:     *username,
			Password:     *password,
			Mock:         *mock,
			BaseURL:      *baseURL,
			LoginURL:     *loginURL,
			Timeout:      *timeout,
			LoginTimeout: *loginTimeout,
		})
		if err != nil {
			panic(fmt.Sprintf("luminus client setup failed: %v", err))
		}
	})

	return c
}
