package queue

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDataURI marks image_data that is not data:<type>;base64,<payload>.
var ErrInvalidDataURI = errors.New("invalid data URI")

// SplitDataURI returns the media type and the still-encoded base64 payload.
func SplitDataURI(uri string) (string, string, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return "", "", fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURI)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", fmt.Errorf("%w: missing payload separator", ErrInvalidDataURI)
	}
	mediaType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", "", fmt.Errorf("%w: payload is not base64", ErrInvalidDataURI)
	}
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	if payload == "" {
		return "", "", fmt.Errorf("%w: empty payload", ErrInvalidDataURI)
	}
	return mediaType, payload, nil
}

// EncodeDataURI renders data as a base64 data URI.
func EncodeDataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
