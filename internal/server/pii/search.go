package pii

import "strings"

// FilterPlaintext returns the records whose named fields contain query,
// case-insensitively. It runs strictly after decryption: the store cannot
// filter on ciphertext, so list endpoints narrow results in memory. An empty
// query returns the input unchanged. Input order is preserved.
func FilterPlaintext(records []Record, fields []string, query string) []Record {
	if query == "" {
		return records
	}
	needle := strings.ToLower(query)

	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if matchesAny(rec, fields, needle) {
			out = append(out, rec)
		}
	}
	return out
}

func matchesAny(rec Record, fields []string, needle string) bool {
	for _, field := range fields {
		value, ok := rec[field].(string)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(value), needle) {
			return true
		}
	}
	return false
}
