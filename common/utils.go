package common

import (
	"encoding/json"
	"regexp"
	"strconv"

	"github.com/google/uuid"

	cn "github.com/nimbusline/platform-core/pkg/constant"
)

// Contains checks if an item is in a slice. This function uses type parameters to work with any slice type.
func Contains[T comparable](slice []T, item T) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}

	return false
}

// CheckMetadataKeyAndValueLength checks the length of every metadata key and
// value against limit. Used by outbox payload and projection row validation
// before a write is allowed onto an owned table.
func CheckMetadataKeyAndValueLength(limit int, metadata map[string]any) error {
	for k, v := range metadata {
		if len(k) > limit {
			return cn.ErrMetadataKeyLengthExceeded
		}

		var value string

		switch t := v.(type) {
		case int:
			value = strconv.Itoa(t)
		case float64:
			value = strconv.FormatFloat(t, 'f', -1, 64)
		case string:
			value = t
		case bool:
			value = strconv.FormatBool(t)
		}

		if len(value) > limit {
			return cn.ErrMetadataValueLengthExceeded
		}
	}

	return nil
}

// SafeIntToUint64 converts val to uint64, clamping negative values to 1
// rather than wrapping, for use where a count (e.g. publish_attempts)
// must never be reported as an enormous unsigned number.
func SafeIntToUint64(val int) uint64 {
	if val < 0 {
		return uint64(1)
	}

	return uint64(val)
}

var uuidPattern = regexp.MustCompile("^[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[1-8][a-fA-F0-9]{3}-[89abAB][a-fA-F0-9]{3}-[a-fA-F0-9]{12}$")

// IsUUID reports whether s is a syntactically valid UUID.
func IsUUID(s string) bool {
	return uuidPattern.MatchString(s)
}

// GenerateUUIDv7 generates a new time-ordered UUIDv7, used for event_id and
// aggregate_id so that IDs sort roughly by creation time.
func GenerateUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// StructToJSONString marshals s to a JSON string, used for debug logging of
// outbox payloads and registry configuration.
func StructToJSONString(s any) (string, error) {
	jsonByte, err := json.Marshal(s)
	if err != nil {
		return "", err
	}

	return string(jsonByte), nil
}
