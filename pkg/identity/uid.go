package identity

import "github.com/google/uuid"

// Generator produces collision-resistant uids.
type Generator interface {
	Generate() string
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func() string

// Generate calls f.
func (f GeneratorFunc) Generate() string { return f() }

// UUIDGenerator emits UUIDv7 strings: a millisecond timestamp prefix followed
// by random bits, so uids sort by creation time and need no coordination.
type UUIDGenerator struct{}

// Generate returns a new UUIDv7, falling back to a random UUIDv4 if the
// clock-based generator fails.
func (UUIDGenerator) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewGenerator returns the default generator.
func NewGenerator() Generator {
	return UUIDGenerator{}
}

// Fresh returns a generated uid that taken does not report as used.
func Fresh(g Generator, taken func(string) bool) string {
	for {
		uid := g.Generate()
		if uid != "" && !taken(uid) {
			return uid
		}
	}
}
