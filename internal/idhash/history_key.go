// Package idhash derives deterministic identifiers from request parameters.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"memecoin-calls/internal/domain"
)

// ComputeHistoryKey computes a deterministic key for a price history request.
// Formula: SHA256(history|token_id|from_unix|to_unix|resolution)
// Returns hex-encoded hash (64 characters).
func ComputeHistoryKey(tokenID string, fromUnix, toUnix int64, res domain.Resolution) string {
	return compute(fmt.Sprintf("history|%s|%d|%d|%s", tokenID, fromUnix, toUnix, res))
}

// ComputeCandlesKey computes a deterministic key for an OHLCV request.
// Formula: SHA256(candles|token_id|from_unix|to_unix|resolution)
func ComputeCandlesKey(tokenID string, fromUnix, toUnix int64, res domain.Resolution) string {
	return compute(fmt.Sprintf("candles|%s|%d|%d|%s", tokenID, fromUnix, toUnix, res))
}

func compute(data string) string {
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
