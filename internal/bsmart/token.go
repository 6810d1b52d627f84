package bsmart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// pspdfkitVersion is the protocol banner the document server expects.
// Captured from the web reader; the auth endpoint rejects requests
// without it.
const pspdfkitVersion = "protocol=5, client=1.1.0, client-git=e4dd477934"

// ImageCredentials authorize page-image requests for one book. Short
// lived and scoped to a single layer of a single document.
type ImageCredentials struct {
	ImageToken  string `json:"imageToken"`
	LayerHandle string `json:"layerHandle"`
}

// DocumentID returns the platform's document identifier for a book.
func DocumentID(bookID int) string {
	return fmt.Sprintf("bsmart-P-S-%d", bookID)
}

// BuildToken signs the 24-hour authorization token binding the book
// identity and derived password under the recovered platform key.
func BuildToken(signingKeyPEM string, bookID int, password string) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(signingKeyPEM))
	if err != nil {
		return "", fmt.Errorf("failed to parse signing key: %w: %v", ErrSigningFailed, err)
	}

	claims := jwt.MapClaims{
		"permissions": []string{"read-document", "write"},
		"document_id": DocumentID(bookID),
		"password":    password,
		"exp":         time.Now().Add(24 * time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w: %v", ErrSigningFailed, err)
	}
	return signed, nil
}

// ExchangeImageAuth trades the signed token for the image token and layer
// handle needed to request page images.
func (c *Client) ExchangeImageAuth(ctx context.Context, bookID int, token string) (*ImageCredentials, error) {
	payload, err := json.Marshal(map[string]string{"jwt": token})
	if err != nil {
		return nil, fmt.Errorf("failed to encode auth payload: %w", err)
	}

	authURL := fmt.Sprintf("%s/i/d/%s/auth", c.ImageBaseURL, DocumentID(bookID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, authURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("PSPDFKit-Platform", "web")
	req.Header.Set("PSPDFKit-Version", pspdfkitVersion)
	req.Header.Set("Origin", c.ReaderBaseURL)
	req.Header.Set("Referer", c.ReaderBaseURL+"/")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("auth endpoint returned status %d: %s: %w", resp.StatusCode, string(body), ErrAuthorizationRejected)
	}

	var creds ImageCredentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return nil, fmt.Errorf("failed to decode auth response: %w: %v", ErrAuthorizationRejected, err)
	}
	if creds.ImageToken == "" || creds.LayerHandle == "" {
		return nil, fmt.Errorf("auth response missing imageToken/layerHandle: %w", ErrAuthorizationRejected)
	}
	return &creds, nil
}

// FetchPage downloads the raw image bytes for one page. Pages are 1-based
// at this API; the platform's image URLs are 0-based, so page n maps to
// index n-1. A non-200 response is returned as an error for the caller's
// retry policy to handle.
func (c *Client) FetchPage(ctx context.Context, bookID int, creds *ImageCredentials, page int) ([]byte, error) {
	pageURL := fmt.Sprintf("%s/i/d/%s/h/%s/page-%d-dimensions-1600-2262-tile-0-0-1600-2262",
		c.ImageBaseURL, DocumentID(bookID), creds.LayerHandle, page-1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create page request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-PSPDFKit-Image-Token", creds.ImageToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("page %d request failed: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page %d returned status %d", page, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read page %d: %w", page, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("page %d returned empty body", page)
	}
	return data, nil
}
