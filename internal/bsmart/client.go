// Package bsmart implements the bSmart platform client: the login
// handshake, catalog access, book password derivation, signing key
// recovery and the authorization exchange that yields page-image
// credentials.
package bsmart

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultWebBaseURL    = "https://www.bsmart.it"
	defaultReaderBaseURL = "https://books.bsmart.it"
	defaultImageBaseURL  = "https://pspdfkit.bsmart.it"

	// Name of the cookie the platform sets on successful login. Its
	// absence after the login POST is the invalid-credentials signal.
	sessionCookieName = "_bsw_session_v1_production"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:137.0) Gecko/20100101 Firefox/137.0"
)

// Client is an authenticated HTTP session against the bSmart platform.
// The cookie jar carries the login session; all requests share it. A
// Client is safe for concurrent read use once login has completed: no
// method mutates cookie or header state after Login returns.
type Client struct {
	WebBaseURL    string
	ReaderBaseURL string
	ImageBaseURL  string

	httpClient *http.Client
}

// Account holds the credentials derived from one login.
type Account struct {
	AuthToken    string
	SessionToken string
}

// NewClient creates a client with a fresh cookie jar. Base URLs default
// to the production hosts and are overridable for tests.
func NewClient() *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		WebBaseURL:    defaultWebBaseURL,
		ReaderBaseURL: defaultReaderBaseURL,
		ImageBaseURL:  defaultImageBaseURL,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: 60 * time.Second,
		},
	}
}

func (c *Client) loginURL() string {
	return c.WebBaseURL + "/users/sign_in?back_url=" + url.QueryEscape(c.ReaderBaseURL) + "&from=books"
}

// browserHeaders sets the header block the platform expects from the web
// reader. The service rejects requests with a non-browser profile.
func (c *Client) browserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Origin", c.WebBaseURL)
	req.Header.Set("Referer", c.loginURL())
}

// Login performs the full login handshake: fetch the sign-in page, lift
// the anti-forgery token out of the login form, POST the credentials,
// verify the session cookie appeared, and exchange the session for the
// account auth token. A failed step is surfaced immediately; there is no
// retry at this layer.
func (c *Client) Login(ctx context.Context, email, password string) (*Account, error) {
	token, err := c.fetchAuthenticityToken(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"authenticity_token": {token},
		"user[email]":        {email},
		"user[password]":     {password},
		"commit":             {"Log in"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create login request: %w", err)
	}
	c.browserHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	// The response body is the post-login redirect page; only the cookie
	// jar matters here.
	resp.Body.Close()

	sessionToken := c.sessionCookie()
	if sessionToken == "" {
		return nil, fmt.Errorf("no %s cookie after login: %w", sessionCookieName, ErrInvalidCredentials)
	}
	slog.Debug("session established", "cookie", sessionCookieName)

	authToken, err := c.fetchAuthToken(ctx)
	if err != nil {
		return nil, err
	}

	return &Account{AuthToken: authToken, SessionToken: sessionToken}, nil
}

// fetchAuthenticityToken loads the sign-in page and extracts the
// single-use anti-forgery token from the login form.
func (c *Client) fetchAuthenticityToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.loginURL(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create sign-in request: %w", err)
	}
	c.browserHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch sign-in page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sign-in page returned status %d: %w", resp.StatusCode, ErrTokenExchange)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse sign-in page: %w", err)
	}

	token, ok := doc.Find("form#new_user input[name=authenticity_token]").Attr("value")
	if !ok || token == "" {
		return "", fmt.Errorf("no authenticity_token in login form: %w", ErrTokenExchange)
	}
	return token, nil
}

// sessionCookie returns the session cookie value currently in the jar,
// or "" if the platform never set one.
func (c *Client) sessionCookie() string {
	u, err := url.Parse(c.WebBaseURL)
	if err != nil {
		return ""
	}
	for _, cookie := range c.httpClient.Jar.Cookies(u) {
		if cookie.Name == sessionCookieName {
			return cookie.Value
		}
	}
	return ""
}

// fetchAuthToken calls the current-user endpoint on the fresh session and
// returns the account's API auth token.
func (c *Client) fetchAuthToken(ctx context.Context) (string, error) {
	var user struct {
		AuthToken string `json:"auth_token"`
	}
	if err := c.getJSON(ctx, c.WebBaseURL+"/api/v6/user", "", &user); err != nil {
		return "", fmt.Errorf("user endpoint: %w: %v", ErrTokenExchange, err)
	}
	if user.AuthToken == "" {
		return "", fmt.Errorf("user endpoint returned empty auth_token: %w", ErrTokenExchange)
	}
	return user.AuthToken, nil
}
