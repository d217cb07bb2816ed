package models

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is a position in a (timestamp, id) ordered stream.
type Cursor struct {
	At time.Time
	ID uint
}

func (c Cursor) IsZero() bool { return c.ID == 0 && c.At.IsZero() }

func (c Cursor) Before(other Cursor) bool {
	if !c.At.Equal(other.At) {
		return c.At.Before(other.At)
	}
	return c.ID < other.ID
}

func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.At.UnixMicro(), 10) + ":" + strconv.FormatUint(uint64(c.ID), 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(s string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	at, id, ok := strings.Cut(string(raw), ":")
	if !ok {
		return Cursor{}, ErrInvalidCursor
	}
	micros, err := strconv.ParseInt(at, 10, 64)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil || n == 0 {
		return Cursor{}, ErrInvalidCursor
	}
	return Cursor{At: time.UnixMicro(micros).UTC(), ID: uint(n)}, nil
}
