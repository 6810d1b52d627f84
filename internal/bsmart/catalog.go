package bsmart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// BookSummary is one entry of the account's book list.
type BookSummary struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	PageCount int    `json:"page_count"`
	BookCode  string `json:"book_code"`
}

// BookInfo is the full metadata record for one book. PageCount and the
// identity fields feed password derivation and the fetch pipeline;
// records missing them are unusable.
type BookInfo struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	PageCount int    `json:"page_count"`
	BookCode  string `json:"book_code"`
	Brand     struct {
		Publisher struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"publisher"`
	} `json:"brand"`
}

// ListBooks returns every book on the account.
func (c *Client) ListBooks(ctx context.Context, authToken string) ([]BookSummary, error) {
	if authToken == "" {
		return nil, ErrNotAuthenticated
	}

	var books []BookSummary
	listURL := c.WebBaseURL + "/api/v6/books?page_thumb_size=medium&per_page=25000"
	if err := c.getJSON(ctx, listURL, authToken, &books); err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

// GetBookInfo fetches the metadata record for one book and validates the
// fields every downstream step depends on.
func (c *Client) GetBookInfo(ctx context.Context, authToken string, bookID int) (*BookInfo, error) {
	if authToken == "" {
		return nil, ErrNotAuthenticated
	}

	var info BookInfo
	infoURL := fmt.Sprintf("%s/api/v6/books/by_book_id/%d", c.WebBaseURL, bookID)
	if err := c.getJSON(ctx, infoURL, authToken, &info); err != nil {
		return nil, fmt.Errorf("failed to fetch book info: %w", err)
	}

	switch {
	case info.PageCount <= 0:
		return nil, fmt.Errorf("book %d has no page_count: %w", bookID, ErrMetadataUnavailable)
	case info.BookCode == "":
		return nil, fmt.Errorf("book %d has no book_code: %w", bookID, ErrMetadataUnavailable)
	case info.Brand.Publisher.Name == "":
		return nil, fmt.Errorf("book %d has no publisher: %w", bookID, ErrMetadataUnavailable)
	}
	return &info, nil
}

// getJSON issues an authenticated GET and decodes the JSON response.
// authToken may be empty for endpoints authenticated by cookie alone.
func (c *Client) getJSON(ctx context.Context, rawURL, authToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.browserHeaders(req)
	req.Header.Set("Accept", "application/json")
	if authToken != "" {
		req.Header.Set("auth_token", authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", rawURL, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
