package ch

import (
	"encoding/json"
	"time"
)

// timeToNanoseconds converts a timestamp to unix nanoseconds, the storage
// representation of every DateTime64(9) column.
func timeToNanoseconds(t time.Time) int64 {
	return t.UnixNano()
}

// jsonString renders a value as a JSON string column, mapping nil to "".
func jsonString(value interface{}) string {
	if value == nil {
		return ""
	}
	data, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(data)
}

func derefOr[T any](ptr *T, fallback T) T {
	if ptr == nil {
		return fallback
	}
	return *ptr
}
