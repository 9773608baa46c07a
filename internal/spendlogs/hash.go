package spendlogs

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// hashFromResponse derives a stable identifier from a response object.
// JSON encoding gives deterministic output (map keys sort); if the
// object does not encode, the hash of its printed form is used instead.
func hashFromResponse(response any) string {
	data, err := json.Marshal(response)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", response))
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
