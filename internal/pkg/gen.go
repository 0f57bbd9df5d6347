package pkg

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// GenerateNewSocketID - generates a unique id for a freshly accepted
// connection.
func GenerateNewSocketID() string {
	return uuid.NewString()
}

// GenerateGameID - generates a short hex token used as both a room name and
// a match id.
func GenerateGameID() string {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return uuid.NewString()[:6]
	}

	return hex.EncodeToString(b)
}
