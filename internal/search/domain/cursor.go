package domain

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"strings"
)

// Cursor marks the last hit of a keyset page.
type Cursor struct {
	Rank float64 `json:"r"`
	ID   string  `json:"id"`
}

// Encode returns base64url(JSON).
func (c Cursor) Encode() string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor parses a cursor produced by Encode. Padded input is accepted.
func DecodeCursor(s string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(s), "="))
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	if c.ID == "" || math.IsNaN(c.Rank) || math.IsInf(c.Rank, 0) || c.Rank < 0 {
		return Cursor{}, ErrInvalidCursor
	}
	return c, nil
}

// After reports whether (rank, id) sorts after the cursor in
// (rank DESC, id DESC) order.
func (c Cursor) After(rank float64, id string) bool {
	return rank < c.Rank || (rank == c.Rank && id < c.ID)
}
