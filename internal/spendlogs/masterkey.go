package spendlogs

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// MasterKeyAlias is stored in place of the master key's hash when the
// deployment disables persisting the real master credential.
const MasterKeyAlias = "spendgate_master_key"

// rawKeyPrefix marks an unhashed publishable key. Keys in this form are
// hashed before storage.
const rawKeyPrefix = "sk-"

// HashToken returns the one-way stored form of an API key.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IsMasterKey reports whether presented is the configured master key,
// either in raw form or as its stored hash. Returns false when no master
// key is configured. Both comparisons always run so timing does not
// depend on which form matched.
func IsMasterKey(presented, masterKey string) bool {
	if masterKey == "" {
		return false
	}
	rawMatch := constantTimeEqual(presented, masterKey)
	hashMatch := constantTimeEqual(presented, HashToken(masterKey))
	return rawMatch || hashMatch
}

// constantTimeEqual compares two strings without leaking length or
// prefix information: both sides are reduced to fixed-size digests
// before the constant-time comparison, since ConstantTimeCompare
// returns immediately on length mismatch.
func constantTimeEqual(a, b string) bool {
	da := sha256.Sum256([]byte(a))
	db := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(da[:], db[:]) == 1
}

// normalizeAPIKey hashes a raw publishable key into its stored form and
// substitutes the master-key alias when storage of the master credential
// is disabled.
func normalizeAPIKey(apiKey, masterKey string, disableMasterKeyStorage bool) string {
	if strings.HasPrefix(apiKey, rawKeyPrefix) {
		apiKey = HashToken(apiKey)
	}
	if disableMasterKeyStorage && IsMasterKey(apiKey, masterKey) {
		return MasterKeyAlias
	}
	return apiKey
}
