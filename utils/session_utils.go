package utils

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// GenerateSessionID returns a random UUID for an anonymous reader. If the
// system entropy source fails it falls back to "<unix millis>-<base36 random>",
// which is unique enough for grouping but guessable.
func GenerateSessionID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fallbackSessionID(time.Now())
	}
	return id.String()
}

func fallbackSessionID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), strconv.FormatUint(rand.Uint64(), 36))
}
