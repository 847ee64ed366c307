package ws

import (
	"strings"

	"github.com/google/uuid"
)

func newConnID() string {
	return uuid.NewString()
}

// bearerToken strips an optional "Bearer " prefix.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
