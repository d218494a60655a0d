// Package util provides ID generation and environment helpers for CommerceBridge.
package util

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const (
	hexAlphabet        = "0123456789abcdef"
	alnumAlphabet      = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	lowerAlnumAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

	// ShortCodeLength is the length of short URL codes.
	ShortCodeLength = 7
)

// randomFrom draws length characters from alphabet using math/rand/v2.
// IDs produced here are identifiers, not secrets.
func randomFrom(alphabet string, length int) string {
	if length <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(alphabet[rand.IntN(len(alphabet))])
	}
	return b.String()
}

// GenerateRandomID returns "{prefix}{hex}" with hexLength hex characters.
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex returns a random lowercase hexadecimal string.
func GenerateRandomHex(length int) string {
	return randomFrom(hexAlphabet, length)
}

// GenerateRandomAlphaNumeric returns a random mixed-case alphanumeric string.
func GenerateRandomAlphaNumeric(length int) string {
	return randomFrom(alnumAlphabet, length)
}

// GenerateUserID returns a session user id of the form user_<unix-ms>_<8 chars>.
func GenerateUserID(now time.Time) string {
	return "user_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + randomFrom(lowerAlnumAlphabet, 8)
}

// GenerateNotificationID returns a notification id with an "ntf_" prefix.
func GenerateNotificationID() string {
	return GenerateRandomID("ntf_", 32)
}

// GenerateAccountID returns an account id with an "acc_" prefix.
func GenerateAccountID() string {
	return GenerateRandomID("acc_", 24)
}

// GenerateShortCode returns a short URL code.
func GenerateShortCode() string {
	return GenerateRandomAlphaNumeric(ShortCodeLength)
}
