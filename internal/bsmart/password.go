package bsmart

import (
	"crypto/md5"
	"encoding/base64"
	"fmt"
)

// DerivePassword computes the book-specific password the reader frontend
// embeds in its authorization token. The recipe was reverse engineered
// from the platform's obfuscated bundle and must be reproduced
// bit-for-bit:
//
//  1. base64-encode book_code
//  2. split the encoding at character 8
//  3. md5-hex the first part and the publisher name
//  4. raw = "{publisherID}b{hash1}s{bookID}{hash2}m{rest}="
//  5. return base64(raw)
//
// Pure and deterministic: identical metadata always yields an identical
// password.
func DerivePassword(info *BookInfo) (string, error) {
	if info == nil || info.BookCode == "" || info.Brand.Publisher.Name == "" {
		return "", fmt.Errorf("password input fields missing: %w", ErrMetadataUnavailable)
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(info.BookCode))
	firstPart := encoded
	secondPart := ""
	if len(encoded) > 8 {
		firstPart, secondPart = encoded[:8], encoded[8:]
	}

	firstHash := md5.Sum([]byte(firstPart))
	publisherHash := md5.Sum([]byte(info.Brand.Publisher.Name))

	raw := fmt.Sprintf("%db%xs%d%xm%s=",
		info.Brand.Publisher.ID, firstHash, info.ID, publisherHash, secondPart)
	return base64.StdEncoding.EncodeToString([]byte(raw)), nil
}
