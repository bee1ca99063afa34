package canon

import "golang.org/x/text/unicode/norm"

func normalizeNFC(s string) string {
	return norm.NFC.String(s)
}

func normalizeTree(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalizeTree(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalizeTree(val)
		}
		return out
	case string:
		return normalizeNFC(t)
	default:
		return t
	}
}
