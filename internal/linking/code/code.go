// Package code generates and validates the short one-time linking codes.
package code

import (
	"crypto/rand"
	"errors"
	"strings"
)

// Alphabet is the set of symbols a code is drawn from.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultLength is the code length used when none is configured.
const DefaultLength = 8

// MinLength and MaxLength bound the configurable code length.
const (
	MinLength = 4
	MaxLength = 32
)

// rejectAbove is the largest multiple of len(Alphabet) that fits in a byte; bytes at or
// above it are discarded so every symbol is equally likely.
const rejectAbove = 256 - 256%len(Alphabet)

// ErrInvalidLength is returned by NewGenerator for lengths outside [MinLength, MaxLength].
var ErrInvalidLength = errors.New("code: length out of range")

// Generator produces random codes of a fixed length.
type Generator struct {
	length int
}

// NewGenerator returns a Generator for codes of the given length.
func NewGenerator(length int) (*Generator, error) {
	if length < MinLength || length > MaxLength {
		return nil, ErrInvalidLength
	}
	return &Generator{length: length}, nil
}

// Length returns the code length.
func (g *Generator) Length() int {
	return g.length
}

// Generate returns a new random code. Uses crypto/rand.
func (g *Generator) Generate() (string, error) {
	out := make([]byte, 0, g.length)
	buf := make([]byte, g.length*2)
	for len(out) < g.length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == g.length {
				break
			}
		}
	}
	return string(out), nil
}

// Valid reports whether s has the generator's length and only alphabet symbols.
func (g *Generator) Valid(s string) bool {
	if len(s) != g.length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(Alphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}

// Normalize trims surrounding space and upper-cases user input.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
