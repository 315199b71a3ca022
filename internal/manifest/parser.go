package manifest

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Parse turns raw manifest text into a Manifest. manifestURL anchors relative
// references (start_url, icon src); documentURL is the page the manifest was
// linked from and is used for the start_url same-origin check. Parse never
// panics and has no side effects; bad input becomes diagnostics.
func Parse(rawText string, manifestURL, documentURL *url.URL) Manifest {
	m := Manifest{Raw: rawText}

	var root any
	if err := json.Unmarshal([]byte(rawText), &root); err != nil {
		m.DebugString = fmt.Sprintf("ERROR: file isn't valid JSON: %v", err)
		return m
	}
	obj, ok := root.(map[string]any)
	if !ok {
		m.DebugString = "ERROR: manifest isn't a JSON object"
		return m
	}

	m.Value = &Fields{
		StartURL:  parseStartURL(obj, manifestURL, documentURL),
		ShortName: parseString(obj, "short_name"),
		Name:      parseString(obj, "name"),
		Icons:     parseIcons(obj, manifestURL),
	}
	return m
}

// parseString extracts a trimmed string member.
func parseString(obj map[string]any, key string) FieldValue[string] {
	raw, ok := obj[key]
	if !ok {
		return FieldValue[string]{DebugString: fmt.Sprintf("ERROR: %q is missing", key)}
	}
	s, ok := raw.(string)
	if !ok {
		return FieldValue[string]{
			Raw:         raw,
			DebugString: fmt.Sprintf("ERROR: %q must be a string", key),
		}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return FieldValue[string]{
			Raw:         raw,
			DebugString: fmt.Sprintf("ERROR: %q is empty", key),
		}
	}
	return FieldValue[string]{Raw: raw, Value: &s}
}

// parseStartURL extracts start_url, resolved against the manifest URL. The
// resolved URL must share an origin with the document it was linked from.
func parseStartURL(obj map[string]any, manifestURL, documentURL *url.URL) FieldValue[url.URL] {
	raw, ok := obj["start_url"]
	if !ok {
		return FieldValue[url.URL]{DebugString: `ERROR: "start_url" is missing`}
	}
	s, ok := raw.(string)
	if !ok {
		return FieldValue[url.URL]{
			Raw:         raw,
			DebugString: `ERROR: "start_url" must be a string`,
		}
	}

	resolved, err := resolveURL(s, manifestURL)
	if err != nil {
		return FieldValue[url.URL]{
			Raw:         raw,
			DebugString: fmt.Sprintf(`ERROR: "start_url" is not a valid URL: %v`, err),
		}
	}
	if documentURL != nil && !sameOrigin(resolved, documentURL) {
		return FieldValue[url.URL]{
			Raw:         raw,
			DebugString: `ERROR: "start_url" must be same-origin as the document`,
		}
	}
	return FieldValue[url.URL]{Raw: raw, Value: resolved}
}

// parseIcons extracts the icons member. The member is present only when at
// least one entry has a usable src; entries without one are skipped rather
// than poisoning the list.
func parseIcons(obj map[string]any, manifestURL *url.URL) FieldValue[[]Icon] {
	raw, ok := obj["icons"]
	if !ok {
		return FieldValue[[]Icon]{DebugString: `ERROR: "icons" is missing`}
	}
	entries, ok := raw.([]any)
	if !ok {
		return FieldValue[[]Icon]{
			Raw:         raw,
			DebugString: `ERROR: "icons" must be an array`,
		}
	}

	icons := make([]Icon, 0, len(entries))
	for _, entry := range entries {
		icon, ok := parseIcon(entry, manifestURL)
		if !ok {
			continue
		}
		icons = append(icons, icon)
	}
	if len(icons) == 0 {
		return FieldValue[[]Icon]{
			Raw:         raw,
			DebugString: `ERROR: no usable icons were found in "icons"`,
		}
	}
	return FieldValue[[]Icon]{Raw: raw, Value: &icons}
}

// parseIcon coerces one icons entry. An entry is usable when it is an object
// whose src resolves against the manifest URL.
func parseIcon(entry any, manifestURL *url.URL) (Icon, bool) {
	obj, ok := entry.(map[string]any)
	if !ok {
		return Icon{}, false
	}
	src, ok := obj["src"].(string)
	if !ok || strings.TrimSpace(src) == "" {
		return Icon{}, false
	}
	resolved, err := resolveURL(src, manifestURL)
	if err != nil {
		return Icon{}, false
	}

	icon := Icon{Src: resolved}
	if sizes, ok := obj["sizes"].(string); ok {
		icon.Sizes = strings.Fields(sizes)
	}
	if mime, ok := obj["type"].(string); ok {
		icon.Type = strings.TrimSpace(mime)
	}
	return icon, true
}

// resolveURL parses ref and resolves it against base when base is non-nil.
// The result must be absolute.
func resolveURL(ref string, base *url.URL) (*url.URL, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("%q does not resolve to an absolute URL", ref)
	}
	return parsed, nil
}

func sameOrigin(a, b *url.URL) bool {
	return a.Scheme == b.Scheme && a.Host == b.Host
}
