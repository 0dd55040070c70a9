package protocol

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign computes the hex HMAC-SHA256 digest of message, using secret as
// the key. The message is trimmed of surrounding whitespace first so a
// command signs identically however the caller terminated it.
//
// Sign is deterministic: the same secret and message always produce the
// same digest.
func Sign(secret, message string) (string, error) {
	if secret == "" {
		return "", ErrCredentialsMissing
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.TrimSpace(message)))

	return hex.EncodeToString(mac.Sum(nil)), nil
}
