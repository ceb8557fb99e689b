package jsonrpc

import "encoding/json"

const (
	maxResponseBytes = 100 * 1024
	stringFieldCap   = 2048
	truncatedSuffix  = "[TRUNCATED - response too large]"
)

// truncateIfOversized serializes result and, if it exceeds maxBytes,
// recursively replaces long string leaves with a capped prefix plus the
// truncated suffix, setting a sibling "_truncated": true flag, preserving
// the overall result envelope structure.
func truncateIfOversized(result any, maxBytes int) (any, bool) {
	if maxBytes <= 0 {
		maxBytes = maxResponseBytes
	}
	raw, err := json.Marshal(result)
	if err != nil || len(raw) <= maxBytes {
		return result, false
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return result, false
	}
	return truncateValue(generic), true
}

func truncateValue(v any) any {
	switch val := v.(type) {
	case string:
		if len(val) > stringFieldCap {
			return val[:stringFieldCap] + truncatedSuffix
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val)+1)
		truncatedAny := false
		for k, v := range val {
			before := v
			after := truncateValue(v)
			out[k] = after
			if isTruncatedString(before, after) {
				truncatedAny = true
			}
		}
		if truncatedAny {
			out["_truncated"] = true
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = truncateValue(elem)
		}
		return out
	default:
		return v
	}
}

func isTruncatedString(before, after any) bool {
	bs, ok1 := before.(string)
	as, ok2 := after.(string)
	return ok1 && ok2 && bs != as
}
