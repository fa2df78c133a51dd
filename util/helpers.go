// Package util provides small parsing helpers shared by the loaders, the CLI and the service.
package util

import (
	"encoding/json"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/package-url/packageurl-go"
)

// GetEnvDefault is a convenience function for handling env vars
func GetEnvDefault(key, defVal string) string {
	val, ex := os.LookupEnv(key) // get the env var
	if !ex {                     // not found return default
		return defVal
	}
	return val // return value for env var
}

// IsEmpty checks if a string is empty or contains only whitespace
func IsEmpty(s string) bool {
	return len(strings.TrimSpace(s)) == 0
}

// FileExists checks if a file exists
func FileExists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}

// ParseNumber converts a loosely typed JSON value into a float.
// Absent values (nil or blank strings) give 0 and ok. Anything that is not a
// finite number gives 0 and !ok.
func ParseNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0, true
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, true
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseFlag converts a "True"/"False" style value into a bool. Absent or
// unrecognized values are false.
func ParseFlag(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && parsed
	default:
		return false
	}
}

// Stringify renders an id-like value as a string. Integral numbers lose their
// decimal point, nil becomes "".
func Stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		if s == math.Trunc(s) && math.Abs(s) < 1e15 {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses an ISO-8601 timestamp. A blank string gives the zero time and ok.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, true
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ProductFromName derives a product label from a component name: the last
// ":"-separated segment with its first letter upper-cased.
func ProductFromName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	segment := name[strings.LastIndex(name, ":")+1:]
	if segment == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(segment)
	return string(unicode.ToUpper(r)) + segment[size:]
}

// SplitComponentPURL splits a versioned package URL used as a component name
// into its base PURL and version. ok is false when s is not a PURL or carries
// no version.
// Example: pkg:npm/lodash@4.17.20 -> pkg:npm/lodash, 4.17.20
func SplitComponentPURL(s string) (name, version string, ok bool) {
	if !strings.HasPrefix(s, "pkg:") {
		return "", "", false
	}
	parsed, err := packageurl.FromString(s)
	if err != nil || parsed.Version == "" {
		return "", "", false
	}

	// Version, qualifiers and subpath are dropped
	base := packageurl.PackageURL{
		Type:      parsed.Type,
		Namespace: parsed.Namespace,
		Name:      parsed.Name,
	}
	return base.ToString(), parsed.Version, true
}
