// Package idgen generates hash-based issue IDs.
package idgen

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// base36Alphabet is the character set for base36 encoding (0-9, a-z).
const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// MaxNonce bounds collision retries at a given length before growing the hash.
const MaxNonce = 10

// EncodeBase36 converts a byte slice to a base36 string of specified length.
func EncodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)

	var result strings.Builder
	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	// Build the string in reverse
	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}
	for i := len(chars) - 1; i >= 0; i-- {
		result.WriteByte(chars[i])
	}

	str := result.String()
	if len(str) < length {
		str = strings.Repeat("0", length-len(str)) + str
	}
	// Keep least significant digits
	if len(str) > length {
		str = str[len(str)-length:]
	}
	return str
}

// GenerateHashID creates a hash-based ID for an issue.
// The length parameter is expected to be 3-8; other values fall back to a 3-char byte width.
func GenerateHashID(prefix, title, description, creator string, timestamp time.Time, length, nonce int) string {
	// Nonce disambiguates collisions
	content := fmt.Sprintf("%s|%s|%s|%d|%d", title, description, creator, timestamp.UnixNano(), nonce)
	hash := sha256.Sum256([]byte(content))

	var numBytes int
	switch length {
	case 3:
		numBytes = 2 // 16 bits ≈ 3.09 base36 chars
	case 4:
		numBytes = 3 // 24 bits ≈ 4.63 base36 chars
	case 5, 6:
		numBytes = 4 // 32 bits ≈ 6.18 base36 chars
	case 7, 8:
		numBytes = 5 // 40 bits ≈ 7.73 base36 chars
	default:
		numBytes = 3
	}

	return fmt.Sprintf("%s-%s", prefix, EncodeBase36(hash[:numBytes], length))
}

// LengthForCount picks the shortest hash length that keeps the collision
// probability low for a store holding count issues.
func LengthForCount(count int) int {
	switch {
	case count < 500:
		return 4
	case count < 5000:
		return 5
	case count < 50000:
		return 6
	case count < 500000:
		return 7
	default:
		return 8
	}
}

// ExistsFunc reports whether an ID is already taken.
type ExistsFunc func(ctx context.Context, id string) (bool, error)

// NewIssueID returns an unused ID, retrying with a nonce and then with a
// longer hash when candidates collide.
func NewIssueID(ctx context.Context, prefix, title, description, creator string, created time.Time, count int, exists ExistsFunc) (string, error) {
	for length := LengthForCount(count); length <= 8; length++ {
		for nonce := 0; nonce < MaxNonce; nonce++ {
			id := GenerateHashID(prefix, title, description, creator, created, length, nonce)
			taken, err := exists(ctx, id)
			if err != nil {
				return "", fmt.Errorf("failed to check id %s: %w", id, err)
			}
			if !taken {
				return id, nil
			}
		}
	}
	return "", fmt.Errorf("failed to generate unique id for %q after exhausting hash lengths", title)
}
