package common

import (
	"os"
	"strconv"

	"github.com/oklog/ulid/v2"
)

func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	return fallback
}

func GetEnvInt(key string, fallback int) int {
	str := GetEnv(key, strconv.Itoa(fallback))
	val, err := strconv.Atoi(str)
	if err != nil {
		return fallback
	}

	return val
}

// NewID generates a lexicographically sortable unique identifier.
// Used for event, action, and generated-rule ids.
func NewID() string {
	return ulid.Make().String()
}
