// Package session derives the durable key a conversation is stored under.
package session

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// WebPrefix namespaces sessions opened from the web widget so they never
// collide with terminal sessions of the same name. Key never emits a bare
// '_', so a prefixed key cannot be produced by Key itself.
const WebPrefix = "session_"

var ErrEmptyName = errors.New("session name is required")

// Key normalizes a user supplied display name into a session key.
//
// The name is trimmed and lower-cased; that is the only normalization, so
// two names map to the same key only when they differ in case or in
// surrounding space. Letters and digits of any script and '-' are kept.
// Every other rune is written as %XX escapes of its UTF-8 bytes, which keeps
// the key usable as a file name without merging distinct names.
func Key(displayName string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(displayName))
	if name == "" {
		return "", ErrEmptyName
	}

	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); {
		r, size := utf8.DecodeRuneInString(name[i:])
		if r == '-' || (r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r))) {
			b.WriteRune(r)
		} else {
			for _, c := range []byte(name[i : i+size]) {
				fmt.Fprintf(&b, "%%%02X", c)
			}
		}
		i += size
	}
	return b.String(), nil
}

// WebKey is Key with the web surface prefix applied.
func WebKey(displayName string) (string, error) {
	k, err := Key(displayName)
	if err != nil {
		return "", err
	}
	return WebPrefix + k, nil
}
