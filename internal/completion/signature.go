package completion

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// CallSignature fingerprints one tool invocation as (server, tool, canonical
// parameters). Parameters are serialized with keys sorted recursively, so
// semantically identical calls produce equal signatures regardless of map
// iteration order. The digest is truncated to 16 hex characters — plenty for
// equality comparison inside a small sliding window.
func CallSignature(server, tool string, params map[string]any) string {
	var b strings.Builder
	b.WriteString(server)
	b.WriteByte('|')
	b.WriteString(tool)
	b.WriteByte('|')
	writeCanonical(&b, params)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}

// writeCanonical serializes v deterministically: map keys sorted, lists in
// order, scalars via %v. The output only needs to be stable, not valid JSON.
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
			b.WriteString(k)
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
	case nil:
		b.WriteString("null")
	default:
		fmt.Fprintf(b, "%v", t)
	}
}

// loopDetector holds the ordered call-signature history for one completion
// operation. It is created fresh per attempt and never shared.
type loopDetector struct {
	enabled bool
	window  int
	history []string
}

// newLoopDetector builds a detector from the resolved iteration config.
func newLoopDetector(cfg IterationConfig) *loopDetector {
	return &loopDetector{
		enabled: cfg.DetectLoops,
		window:  cfg.LoopWindow,
	}
}

// Observe appends sig to the history and reports whether it now occurs at
// least twice within the most recent window entries — the second occurrence
// of an identical call inside the window declares the loop. When detection
// is disabled, Observe records nothing and always reports false.
func (d *loopDetector) Observe(sig string) bool {
	if !d.enabled {
		return false
	}
	d.history = append(d.history, sig)

	start := len(d.history) - d.window
	if start < 0 {
		start = 0
	}
	recent := d.history[start:]

	count := 0
	for _, s := range recent {
		if s == sig {
			count++
		}
	}
	return count >= 2
}

// Reset clears the history, e.g. between retry attempts.
func (d *loopDetector) Reset() {
	d.history = d.history[:0]
}
