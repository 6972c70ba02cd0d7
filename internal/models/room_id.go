package models

import (
	"crypto/rand"
	"regexp"
)

// Room identifiers are short enough to read over a call: 6 chars over
// [a-z0-9] gives ~2.18e9 combinations, collision-checked on insert.
const (
	roomIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	roomIDLength   = 6
)

var roomIDPattern = regexp.MustCompile(`^[a-z0-9]{6}$`)

// NewRoomID generates a random room identifier.
func NewRoomID() string {
	buf := make([]byte, roomIDLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails if the OS entropy source is broken
		panic(err)
	}
	for i, b := range buf {
		buf[i] = roomIDAlphabet[int(b)%len(roomIDAlphabet)]
	}
	return string(buf)
}

// ValidRoomID reports whether s is a well-formed room identifier.
func ValidRoomID(s string) bool {
	return roomIDPattern.MatchString(s)
}
