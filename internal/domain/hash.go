package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// InputsHash computes the 16-character audit hash over a canonicalized input
// snapshot. encoding/json sorts map keys, which gives a stable canonical
// form for identical inputs.
func InputsHash(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}
