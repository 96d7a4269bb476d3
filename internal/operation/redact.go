package operation

import "strings"

const redacted = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"passphrase":      {},
	"password":        {},
	"backup_password": {},
	"key":             {},
	"master_key":      {},
	"user_key":        {},
	"key_material":    {},
	"plaintext":       {},
	"data":            {},
}

// Redact returns a copy of fields with sensitive entries masked. Byte slices are
// always masked since they may carry key material or plaintext.
func Redact(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}

	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, ok := sensitiveKeys[strings.ToLower(k)]; ok {
			out[k] = redacted
			continue
		}
		switch value := v.(type) {
		case []byte:
			out[k] = redacted
		case map[string]any:
			out[k] = Redact(value)
		default:
			out[k] = v
		}
	}
	return out
}
