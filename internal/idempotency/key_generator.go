package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// UpdateKey derives the idempotency key of an inbound chat update.
func UpdateKey(updateID int64) string {
	sum := sha256.Sum256([]byte("update:" + strconv.FormatInt(updateID, 10)))
	return hex.EncodeToString(sum[:])
}
