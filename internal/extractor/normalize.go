package extractor

// fieldAliases maps legacy field names to their canonical forms. Different
// log sources disagree on naming; downstream filters only ever see the
// canonical names.
var fieldAliases = map[string]string{
	"user":        "username",
	"source_ip":   "src_ip",
	"dest_ip":     "dst_ip",
	"source_port": "src_port",
	"dest_port":   "dst_port",
}

// NormalizeFields returns a copy of fields with alias names renamed to their
// canonical forms. When both the alias and the canonical name are present the
// canonical value wins and the alias is dropped. Idempotent: normalizing an
// already-normalized mapping yields the same mapping.
func NormalizeFields(fields map[string]string) map[string]string {
	if fields == nil {
		return nil
	}

	normalized := make(map[string]string, len(fields))
	for name, value := range fields {
		if canonical, ok := fieldAliases[name]; ok {
			if _, exists := fields[canonical]; exists {
				continue
			}
			normalized[canonical] = value
			continue
		}
		normalized[name] = value
	}
	return normalized
}
