// Package render converts opaque MCP tool payloads into text suitable for an
// LLM context window.
//
// Tool servers return wildly different shapes: a bare string, a list of
// structured reference items, or an arbitrary JSON object. [Normalize] maps
// all of them onto a flat list of [Item] values, and [ForLLM] renders the
// result under a "Result from <server>:<tool>" header so the model can tell
// tool output apart from conversation turns.
package render

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Item is the normalized form of one entry in a tool payload.
type Item struct {
	// ID is the item's identifier, or its list index when the server
	// provided none.
	ID string

	// Type is an optional item kind hint (e.g., "reference", "note").
	Type string

	// Title is the item's display heading.
	Title string

	// Snippet is a short excerpt, used when Body is absent.
	Snippet string

	// Body is the item's full text content.
	Body string

	// URL is an optional source link.
	URL string

	// Metadata holds any remaining structured fields of the entry.
	Metadata map[string]any
}

// wellKnownKeys are the map keys lifted into typed Item fields; everything
// else lands in Metadata.
var wellKnownKeys = map[string]bool{
	"id": true, "type": true, "title": true, "snippet": true, "body": true, "url": true,
}

// Normalize converts a raw tool payload into a list of Items.
//
// Strings become a single body-only item. Lists are normalized element-wise:
// string elements become body items, maps are destructured into typed fields
// with leftovers in Metadata, and anything else is stringified. Any other
// payload shape is stringified into a single item.
func Normalize(payload any) []Item {
	switch p := payload.(type) {
	case string:
		return []Item{{Body: p}}
	case []any:
		items := make([]Item, 0, len(p))
		for idx, entry := range p {
			items = append(items, normalizeEntry(entry, idx))
		}
		return items
	case []map[string]any:
		items := make([]Item, 0, len(p))
		for idx, entry := range p {
			items = append(items, normalizeMap(entry, idx))
		}
		return items
	case nil:
		return nil
	default:
		return []Item{{Body: stringify(payload)}}
	}
}

// normalizeEntry normalizes a single list element.
func normalizeEntry(entry any, idx int) Item {
	switch e := entry.(type) {
	case string:
		return Item{ID: strconv.Itoa(idx), Body: e}
	case map[string]any:
		return normalizeMap(e, idx)
	default:
		return Item{ID: strconv.Itoa(idx), Body: stringify(entry)}
	}
}

// normalizeMap destructures a map entry into an Item.
func normalizeMap(entry map[string]any, idx int) Item {
	item := Item{
		ID:      stringField(entry, "id"),
		Type:    stringField(entry, "type"),
		Title:   stringField(entry, "title"),
		Snippet: stringField(entry, "snippet"),
		Body:    stringField(entry, "body"),
		URL:     stringField(entry, "url"),
	}
	if item.ID == "" {
		item.ID = strconv.Itoa(idx)
	}
	for k, v := range entry {
		if wellKnownKeys[k] {
			continue
		}
		if item.Metadata == nil {
			item.Metadata = make(map[string]any)
		}
		item.Metadata[k] = v
	}
	return item
}

// ForLLM renders a tool payload into provider-friendly text.
//
// Map payloads are rendered as a fenced JSON block. List and string payloads
// are normalized and rendered item by item: heading, body (or snippet), URL,
// and a JSON line for leftover metadata. An empty payload yields just the
// header line.
func ForLLM(server, tool string, payload any) string {
	header := fmt.Sprintf("Result from %s:%s", server, tool)

	if m, ok := payload.(map[string]any); ok {
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return header + "\n\n" + stringify(m)
		}
		return header + "\n\n```json\n" + string(data) + "\n```"
	}

	sections := renderItems(Normalize(payload))
	if len(sections) > 0 {
		return strings.TrimSpace(strings.Join(append([]string{header}, sections...), "\n\n"))
	}

	if text := strings.TrimSpace(stringify(payload)); text != "" {
		return header + "\n\n" + text
	}
	return header
}

// Summarize returns a short one-line digest of a payload, used for tool
// event log entries. The first item's body (or snippet) is truncated to
// maxLen runes.
func Summarize(payload any, maxLen int) string {
	items := Normalize(payload)
	if len(items) == 0 {
		return "no items"
	}
	body := strings.TrimSpace(items[0].Body)
	if body == "" {
		body = strings.TrimSpace(items[0].Snippet)
	}
	if body == "" {
		return "no items"
	}
	runes := []rune(body)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "…"
	}
	return body
}

// renderItems renders each normalized item into a text block, skipping
// entirely empty items.
func renderItems(items []Item) []string {
	var sections []string
	for idx, item := range items {
		heading := item.Title
		if heading == "" {
			heading = item.ID
		}
		if heading == "" {
			heading = fmt.Sprintf("Item %d", idx+1)
		}

		lines := []string{heading}
		body := strings.TrimSpace(item.Body)
		if body == "" {
			body = strings.TrimSpace(item.Snippet)
		}
		if body != "" {
			lines = append(lines, body)
		}
		if item.URL != "" {
			lines = append(lines, "URL: "+item.URL)
		}
		if len(item.Metadata) > 0 {
			if data, err := json.Marshal(item.Metadata); err == nil {
				lines = append(lines, "Metadata: "+string(data))
			}
		}

		block := strings.TrimSpace(strings.Join(lines, "\n"))
		if block != "" {
			sections = append(sections, block)
		}
	}
	return sections
}

// stringField reads a string value from a map, tolerating absent keys.
func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// stringify renders an arbitrary value as text, preferring JSON for
// structured values.
func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}
