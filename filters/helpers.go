package filters

import "github.com/wudi/preflight/ir/raw"

// ExtractFilters reads Filter and DecodeParms entries from a stream dictionary.
func ExtractFilters(r raw.Resolver, dict *raw.DictObj) ([]string, []*raw.DictObj) {
	var names []string
	var params []*raw.DictObj

	filterObj, ok := dict.Get("Filter")
	if !ok {
		return names, params
	}
	if n, ok := raw.NameOf(r, filterObj); ok {
		names = append(names, n)
	} else if arr, ok := raw.ArrayOf(r, filterObj); ok {
		for _, item := range arr.Items {
			if n, ok := raw.NameOf(r, item); ok {
				names = append(names, n)
			}
		}
	}
	if len(names) == 0 {
		return names, params
	}

	pObj, ok := dict.Get("DecodeParms")
	if !ok {
		pObj, ok = dict.Get("DP")
	}
	if !ok {
		return names, params
	}
	if d, ok := raw.DictOf(r, pObj); ok {
		params = append(params, d)
	} else if arr, ok := raw.ArrayOf(r, pObj); ok {
		for _, item := range arr.Items {
			d, _ := raw.DictOf(r, item)
			params = append(params, d)
		}
	}
	return names, params
}
