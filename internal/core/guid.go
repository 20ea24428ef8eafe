package core

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	guidAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	guidLength   = 8

	// TempPrefix marks ids assigned to messages the server has not confirmed.
	TempPrefix = "tmp"
)

// GenerateGUID creates a short GUID with the provided prefix.
func GenerateGUID(prefix string) (string, error) {
	normalized := strings.TrimSuffix(prefix, "-")

	buf := make([]byte, guidLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate guid: %w", err)
	}

	id := make([]byte, guidLength)
	for i := 0; i < guidLength; i++ {
		id[i] = guidAlphabet[int(buf[i])%len(guidAlphabet)]
	}

	return fmt.Sprintf("%s-%s", normalized, string(id)), nil
}

// NewTempID returns a local id for an optimistic message.
func NewTempID() (string, error) {
	return GenerateGUID(TempPrefix)
}

// IsTempID reports whether id was assigned locally.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempPrefix+"-")
}

// NewCorrelationID returns the client id carried with a send so the
// confirmed message can be matched to its optimistic copy.
func NewCorrelationID() string {
	return uuid.NewString()
}

// ShortID extracts the shortened id shown in the UI.
func ShortID(id string, length int) string {
	base := id
	if idx := strings.LastIndex(base, "-"); idx >= 0 && IsTempID(base) {
		base = base[idx+1:]
	}
	base = strings.ReplaceAll(base, "-", "")
	if length <= 0 {
		return ""
	}
	if length > len(base) {
		length = len(base)
	}
	return base[:length]
}
