// Package internal holds small helpers shared by the root package and its
// storage backends: opaque token generation and employee id minting.
package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

const opaqueTokenRawSize = 32

// NewOpaqueToken generates a single-use token for email verification or
// password reset. The returned string goes to the user; only the SHA-256
// hash is ever persisted.
func NewOpaqueToken() (string, [32]byte, error) {
	var raw [opaqueTokenRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", [32]byte{}, err
	}

	token := base64.RawURLEncoding.EncodeToString(raw[:])
	return token, sha256.Sum256([]byte(token)), nil
}

// HashOpaqueToken maps a presented token to its storage index key.
func HashOpaqueToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// NewEmployeeID mints an employee identifier of the form
// EMP<yyyymmdd><6 uppercase hex>, assigned when an email is verified.
func NewEmployeeID(now time.Time) (string, error) {
	var suffix [3]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", err
	}

	return fmt.Sprintf("EMP%s%s",
		now.Format("20060102"),
		strings.ToUpper(fmt.Sprintf("%x", suffix)),
	), nil
}
