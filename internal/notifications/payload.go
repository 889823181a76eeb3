package notifications

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Text returns the value at key rendered as trimmed text.
func (p Payload) Text(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Int64 returns the integer value at key, or 0.
func (p Payload) Int64(key string) int64 {
	switch v := p[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n
	default:
		return 0
	}
}

// Float returns the numeric value at key, or 0.
func (p Payload) Float(key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// Bool returns the boolean value at key.
func (p Payload) Bool(key string) bool {
	v, _ := p[key].(bool)
	return v
}

// Duration returns the duration value at key, or 0.
func (p Payload) Duration(key string) time.Duration {
	v, _ := p[key].(time.Duration)
	return v
}
