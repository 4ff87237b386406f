// Package contenthash fingerprints the mutable fields of an upstream event so
// callers can tell whether a stored copy is out of date.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
	"unicode/utf8"
)

// MaxDescriptionRunes bounds how much of the description feeds the hash.
const MaxDescriptionRunes = 500

// Fields is the canonical projection of an event that the hash covers.
type Fields struct {
	Name        string
	Description *string
	StartAt     *time.Time
	EndAt       *time.Time
	Venue       *string
}

// canonical fixes the serialization order.
type canonical struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	StartAt     *string `json:"start_at"`
	EndAt       *string `json:"end_at"`
	Venue       *string `json:"venue"`
}

// Event returns the hex SHA-256 of f. Equal inputs always give equal output.
func Event(f Fields) string {
	c := canonical{
		Name:    f.Name,
		StartAt: isoTime(f.StartAt),
		EndAt:   isoTime(f.EndAt),
		Venue:   f.Venue,
	}
	if f.Description != nil {
		c.Description = truncate(*f.Description, MaxDescriptionRunes)
	}

	// Only strings and nil pointers are marshaled, so this cannot fail.
	data, _ := json.Marshal(c)

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func isoTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format("2006-01-02T15:04:05.000Z")
	return &s
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
