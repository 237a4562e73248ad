package utils

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

const socketIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewSocketID builds a connection identifier of the form
// "<prefix>-<unix millis>-<random base36 suffix>".
func NewSocketID(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), randBase36(9))
}

// NewMessageID builds a per-request AI message identifier.
func NewMessageID() string {
	return fmt.Sprintf("ai-%d-%s", time.Now().UnixMilli(), randBase36(9))
}

func randBase36(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(socketIDAlphabet[rand.IntN(len(socketIDAlphabet))])
	}
	return b.String()
}

// MaskToken hides all but the last four characters of a session token.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "***" + token
	}
	return "***" + token[len(token)-4:]
}

// FirstNonEmpty returns the first non-empty string of the two.
func FirstNonEmpty(str1, str2 string) string {
	if str1 != "" {
		return str1
	}
	return str2
}
