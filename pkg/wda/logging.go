package wda

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	elideThreshold = 40
	elideHead      = 20
	elideTail      = 10
	elideMarker    = "... skip ..."

	errorBodyLimit = 512
)

// elide shortens strings longer than elideThreshold runes to the first
// elideHead and last elideTail runes around elideMarker.
func elide(s string) string {
	r := []rune(s)
	if len(r) <= elideThreshold {
		return s
	}
	return string(r[:elideHead]) + elideMarker + string(r[len(r)-elideTail:])
}

// shortJSON renders a response body for debug logs. Top level string values
// are passed through elide; nested values are kept as is. Bodies that are
// not JSON are elided as a whole.
func shortJSON(body []byte) string {
	if !gjson.ValidBytes(body) {
		return elide(string(body))
	}
	out := body
	gjson.ParseBytes(body).ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.String {
			return true
		}
		short := elide(value.String())
		if short == value.String() {
			return true
		}
		if updated, err := sjson.SetBytes(out, escapePath(key.String()), short); err == nil {
			out = updated
		}
		return true
	})
	return gjson.GetBytes(out, "@pretty").Raw
}

// escapePath escapes the characters gjson and sjson treat as path syntax.
func escapePath(key string) string {
	var b strings.Builder
	for _, c := range key {
		switch c {
		case '.', '*', '?', '|', '#', '@', '\\', ':':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// curlLine renders a request the way it could be replayed from a shell.
func curlLine(method, url string, timeout time.Duration, body []byte) string {
	line := fmt.Sprintf("curl -X%s --max-time %d %s", method, int(math.Ceil(timeout.Seconds())), url)
	if len(body) > 0 {
		line += " -d '" + truncate(string(body)) + "'"
	}
	return line
}

func truncate(s string) string {
	if len(s) <= errorBodyLimit {
		return s
	}
	return s[:errorBodyLimit] + "..."
}
