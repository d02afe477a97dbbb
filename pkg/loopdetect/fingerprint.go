package loopdetect

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// fingerprint builds the (name, canonical-args) pair used for repeated-tool
// equality. Canonicalization fixes a stable, alphabetic key order so that
// structurally equal args JSON-encode identically regardless of the order
// the model emitted them in (spec §9 Open Questions).
func fingerprint(name string, args map[string]any) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('\x00')
	b.WriteString(canonicalJSON(args))
	return b.String()
}

// canonicalJSON renders v as JSON with map keys sorted alphabetically at
// every level, so structural equality matches textual equality.
func canonicalJSON(v any) string {
	var b strings.Builder
	writeCanonical(&b, v)
	return b.String()
}

func writeCanonical(b *strings.Builder, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			writeCanonical(b, t[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, e)
		}
		b.WriteByte(']')
	case string:
		b.WriteString(strconv.Quote(t))
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(t))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case int:
		b.WriteString(strconv.Itoa(t))
	default:
		b.WriteString(strconv.Quote(fmt.Sprintf("%v", t)))
	}
}
