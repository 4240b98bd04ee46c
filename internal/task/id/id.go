// Package id provides unique identifier generation for tasks and uploads.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Generate creates a new unique task ID.
// Format: task-<timestamp>-<random>
// Example: task-1701432000-a1b2c3d4
func Generate() string {
	return WithPrefix("task")
}

// WithPrefix creates a new unique ID with the given prefix.
// Format: <prefix>-<timestamp>-<random>
func WithPrefix(prefix string) string {
	timestamp := time.Now().Unix()
	random := make([]byte, 4)
	if _, err := rand.Read(random); err != nil {
		// Fallback to timestamp only if crypto/rand fails
		return fmt.Sprintf("%s-%d", prefix, timestamp)
	}
	return fmt.Sprintf("%s-%d-%s", prefix, timestamp, hex.EncodeToString(random))
}
