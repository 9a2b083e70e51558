package utils

import (
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const nanoidAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func Now() time.Time {
	return time.Now().UTC()
}

func NowPtr() *time.Time {
	now := Now()
	return &now
}

func GenerateNanoIDWithPrefix(prefix string, length int) string {
	id, _ := gonanoid.Generate(nanoidAlphabet, length)
	return prefix + "_" + id
}

// GetOrDefault returns the value if the pointer is not nil, otherwise returns the default value
func GetOrDefault[T any](ptr *T, defaultVal T) T {
	if ptr == nil {
		return defaultVal
	}
	return *ptr
}

func Ptr[T any](val T) *T {
	return &val
}
