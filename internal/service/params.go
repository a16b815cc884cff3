package service

import "github.com/samber/lo"

// Small decoders from a bus.Request's generic Params map (spec §6.1's
// JSON payload sketches) into the shapes the resolver package wants.
// Params arrives already JSON-decoded by the bus adapter, so these are
// plain type assertions with permissive fallbacks rather than a decoder.

func paramString(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func paramBool(params map[string]any, key string) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return false
}

func paramStringSlice(params map[string]any, key string) []string {
	raw, ok := params[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func paramStringMap(params map[string]any, key string) map[string]string {
	raw, ok := params[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func paramAnyMap(params map[string]any, key string) map[string]any {
	if v, ok := params[key].(map[string]any); ok {
		return v
	}
	return nil
}

// keysParam resolves the "one of keys[], key" convention used throughout
// §6.1's request table. A client that lists the same key twice (a common
// sloppy-client pattern) gets exactly one fetch/subscribe/write for it.
func keysParam(params map[string]any) []string {
	if keys := paramStringSlice(params, "keys"); len(keys) > 0 {
		return lo.Uniq(keys)
	}
	if k := paramString(params, "key"); k != "" {
		return []string{k}
	}
	return nil
}
