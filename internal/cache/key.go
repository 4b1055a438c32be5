package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// PrefixLength is the number of content runes kept by PrefixKeyer.
const PrefixLength = 50

// KeyMode selects a fingerprint strategy.
type KeyMode string

const (
	// KeyModeHash fingerprints the full content with SHA-256.
	KeyModeHash KeyMode = "hash"
	// KeyModePrefix keeps the first 50 runes of content. Two inputs sharing
	// that prefix collide.
	KeyModePrefix KeyMode = "prefix"
)

// Keyer derives a cache key from an endpoint, a problem and user content.
// Equal inputs always yield equal keys.
type Keyer interface {
	Key(endpoint string, problemID int, content string) string
}

// NewKeyer returns the Keyer for mode. Unknown modes yield an error.
func NewKeyer(mode KeyMode) (Keyer, error) {
	switch mode {
	case KeyModeHash, "":
		return HashKeyer{}, nil
	case KeyModePrefix:
		return PrefixKeyer{}, nil
	default:
		return nil, fmt.Errorf("unknown cache key mode %q", mode)
	}
}

// PrefixKeyer builds "<endpoint>_<problem>_<prefix>" where prefix is the
// first PrefixLength runes of content with every whitespace rune replaced
// by an underscore.
type PrefixKeyer struct{}

// Key implements Keyer.
func (PrefixKeyer) Key(endpoint string, problemID int, content string) string {
	runes := []rune(content)
	if len(runes) > PrefixLength {
		runes = runes[:PrefixLength]
	}
	for i, r := range runes {
		if unicode.IsSpace(r) {
			runes[i] = '_'
		}
	}
	return fmt.Sprintf("%s_%d_%s", endpoint, problemID, string(runes))
}

// HashKeyer builds "<endpoint>_<problem>_<sha256(content)>".
type HashKeyer struct{}

// Key implements Keyer.
func (HashKeyer) Key(endpoint string, problemID int, content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%s_%d_%s", endpoint, problemID, hex.EncodeToString(sum[:]))
}

// EndpointOf returns the endpoint segment of a key built by a Keyer.
func EndpointOf(key string) string {
	if i := strings.IndexByte(key, '_'); i > 0 {
		return key[:i]
	}
	return key
}
