// Package identity resolves raw team and country names from heterogeneous
// odds providers to canonical entities. Bookmaker feeds and prediction
// markets spell the same club differently ("Wolverhampton Wanderers FC",
// "Wolves", "ATM Club Atlético De Madrid"); the resolver maps every spelling
// to one canonical name using strict dictionaries, alias tables, and fuzzy
// matching as a last resort.
package identity

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// tickerPrefix matches a leading ticker-style prefix as seen on some
// Polymarket listings: 2-4 uppercase letters, an optional digit, then
// whitespace ("ATM Club Atlético", "BOG1 Bodo Glimt").
var tickerPrefix = regexp.MustCompile(`^[A-Z]{2,4}\d?\s+`)

// clubSuffix matches a trailing club suffix token.
var clubSuffix = regexp.MustCompile(`(?i)\s*(FC|AFC|CF)$`)

// Normalize strips cosmetic noise from a raw entity name: a leading ticker
// prefix, a trailing FC/AFC/CF token, and redundant whitespace. If stripping
// leaves nothing the original trimmed name is returned. Pure function, never
// fails.
func Normalize(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return ""
	}

	stripped := tickerPrefix.ReplaceAllString(name, "")
	stripped = clubSuffix.ReplaceAllString(stripped, "")
	stripped = strings.Join(strings.Fields(stripped), " ")

	if stripped == "" {
		return name
	}
	return stripped
}

// Fold lowercases a name and strips diacritics so that "Atlético" and
// "atletico" compare equal. Used for every dictionary and alias lookup key.
func Fold(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	name, _, _ = transform.String(t, name)

	return strings.Join(strings.Fields(name), " ")
}

// variants returns the lookup candidates for a raw name in priority order:
// the trimmed original, the ticker-stripped form, the suffix-stripped form,
// and the fully normalized form. Duplicates are removed, order preserved.
func variants(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	noTicker := strings.TrimSpace(tickerPrefix.ReplaceAllString(trimmed, ""))
	noSuffix := strings.TrimSpace(clubSuffix.ReplaceAllString(trimmed, ""))
	full := Normalize(raw)

	out := make([]string, 0, 4)
	seen := make(map[string]bool, 4)
	for _, v := range []string{trimmed, noTicker, noSuffix, full} {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
