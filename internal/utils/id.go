package utils

import (
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const nanoIdAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateNanoIDWithPrefix returns "<prefix>_<id>" or a bare id when prefix is empty.
func GenerateNanoIDWithPrefix(prefix string, size int) string {
	id, err := gonanoid.Generate(nanoIdAlphabet, size)
	if err != nil {
		// alphabet and size are constants, a failure here means the entropy source is gone
		id = uuid.NewString()
	}
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

func NewRunId() string {
	return uuid.NewString()
}

func Now() time.Time {
	return time.Now().UTC()
}
