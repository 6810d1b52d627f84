package bsmart

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// The reader bundle hides an RSA private key rotated 12 positions through
// the alphabet; rotating a further 14 restores it. The PEM armor lines
// are rotated along with the payload, so the sentinels below are the
// rotated forms of "BEGIN PRIVATE KEY" / "END PRIVATE KEY" and must be
// matched literally as they appear in the asset.
var keyBlockRe = regexp.MustCompile(`-----NQSUZ BDUHMFQ WQK-----[\s\S]*?-----QZP BDUHMFQ WQK-----`)

// keyShift is the forward rotation that recovers plaintext.
const keyShift = 14

// ScriptURL discovers the current versioned bundle URL. The filename hash
// changes on every deploy, so the landing page has to be consulted each
// time; the result must never be cached across operations.
func (c *Client) ScriptURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ReaderBaseURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create landing page request: %w", err)
	}
	c.browserHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch landing page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("landing page returned status %d: %w", resp.StatusCode, ErrAssetNotFound)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse landing page: %w", err)
	}

	var src string
	doc.Find("script[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("src")
		if strings.HasPrefix(v, "/assets/index-") {
			src = v
			return false
		}
		return true
	})
	if src == "" {
		return "", fmt.Errorf("no /assets/index-* script on landing page: %w", ErrAssetNotFound)
	}
	return c.ReaderBaseURL + src, nil
}

// ExtractSigningKey fetches the bundle and recovers the PEM private key
// from its obfuscated block. Format drift in the bundle is terminal;
// retrying against the same asset cannot succeed.
func (c *Client) ExtractSigningKey(ctx context.Context, scriptURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scriptURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create script request: %w", err)
	}
	c.browserHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch script asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("script asset returned status %d: %w", resp.StatusCode, ErrKeyExtraction)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read script asset: %w", err)
	}

	block := keyBlockRe.Find(body)
	if block == nil {
		return "", fmt.Errorf("no obfuscated key block in %s: %w", scriptURL, ErrKeyExtraction)
	}
	return rotateAlpha(string(block), keyShift), nil
}

// rotateAlpha shifts each ASCII letter forward n positions within its
// case's alphabet, wrapping at 26. Everything else passes through, which
// keeps the base64 key material digits, padding and PEM dashes intact.
func rotateAlpha(s string, n int) string {
	shift := byte(n % 26)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= 'A' && ch <= 'Z':
			ch = 'A' + (ch-'A'+shift)%26
		case ch >= 'a' && ch <= 'z':
			ch = 'a' + (ch-'a'+shift)%26
		}
		b.WriteByte(ch)
	}
	return b.String()
}
