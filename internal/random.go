package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const sessionEntropySize = 32

// NewOTP draws a numeric code of the given length from r. A nil r uses
// crypto/rand.
func NewOTP(r io.Reader, digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}
	if r == nil {
		r = rand.Reader
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(r, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// NewSessionToken derives an opaque bearer token from the username, the
// issue instant in nanoseconds and 32 bytes read from r. The result is 64
// lowercase hex characters.
func NewSessionToken(r io.Reader, username string, now time.Time) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	var entropy [sessionEntropySize]byte
	if _, err := io.ReadFull(r, entropy[:]); err != nil {
		return "", fmt.Errorf("read token entropy: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(username))
	h.Write([]byte{':'})
	h.Write([]byte(strconv.FormatInt(now.UnixNano(), 10)))
	h.Write([]byte{':'})
	h.Write(entropy[:])
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashToken returns the sha256 of a presented token, used where only a
// digest is persisted or logged.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
