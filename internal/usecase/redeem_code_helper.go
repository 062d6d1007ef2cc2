package usecase

import (
	"crypto/rand"
	"io"
	"strings"
)

// generateRedeemCode creates a random, human-readable code of length
// characters grouped in fours, e.g. XXXX-XXXX.
func generateRedeemCode(length int) (string, error) {
	// A character set that avoids ambiguous characters like O/0, I/1, l.
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	if length <= 0 {
		length = 8
	}

	buffer := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, buffer); err != nil {
		return "", err
	}
	// 256 is a multiple of 32, so the modulo is unbiased.
	for i := 0; i < length; i++ {
		buffer[i] = chars[int(buffer[i])%len(chars)]
	}

	var b strings.Builder
	for i := 0; i < length; i += 4 {
		if i > 0 {
			b.WriteByte('-')
		}
		end := i + 4
		if end > length {
			end = length
		}
		b.Write(buffer[i:end])
	}
	return b.String(), nil
}

// normalizeRedeemCode accepts user input in any case with surrounding spaces.
func normalizeRedeemCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
