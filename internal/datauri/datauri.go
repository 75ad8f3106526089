// Package datauri encodes and decodes RFC 2397 data URIs.
package datauri

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const prefix = "data:"

var ErrInvalid = errors.New("invalid data URI")

// IsDataURI reports whether s is an embedded data reference
func IsDataURI(s string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// Encode returns data as a base64 data URI with the given media type
func Encode(mediaType string, data []byte) string {
	var b strings.Builder
	b.Grow(len(prefix) + len(mediaType) + len(";base64,") + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString(prefix)
	b.WriteString(mediaType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

// Decode splits a data URI into its media type and payload.
// Both base64 and percent-encoded payloads are accepted.
func Decode(s string) (string, []byte, error) {
	if !IsDataURI(s) {
		return "", nil, fmt.Errorf("%w: missing %q prefix", ErrInvalid, prefix)
	}
	header, payload, ok := strings.Cut(s[len(prefix):], ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload separator", ErrInvalid)
	}

	params := strings.Split(header, ";")
	mediaType := params[0]
	if mediaType == "" {
		mediaType = "text/plain;charset=US-ASCII"
	}

	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(p, "base64") {
			isBase64 = true
		}
	}

	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return mediaType, data, nil
	}

	unescaped, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return mediaType, []byte(unescaped), nil
}
