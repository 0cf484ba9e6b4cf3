package canvas

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"
)

// Params holds query parameters for a request. Scalar values serialize
// as key=value; slice values serialize as repeated key[]=value pairs
// (the bracket convention the Canvas API expects for arrays).
type Params map[string]any

// EncodeQuery builds a canonical query string from p, including the
// leading "?". Keys are emitted in sorted order, keys and values are
// percent-encoded, empty slices contribute nothing, and an empty
// parameter set yields the empty string (no bare "?").
func EncodeQuery(p Params) string {
	if len(p) == 0 {
		return ""
	}

	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var pairs []string
	for _, k := range keys {
		v := reflect.ValueOf(p[k])
		if v.IsValid() && (v.Kind() == reflect.Slice || v.Kind() == reflect.Array) {
			arrayKey := url.QueryEscape(k) + "[]"
			for i := 0; i < v.Len(); i++ {
				pairs = append(pairs, arrayKey+"="+url.QueryEscape(fmt.Sprint(v.Index(i).Interface())))
			}
			continue
		}
		pairs = append(pairs, url.QueryEscape(k)+"="+url.QueryEscape(fmt.Sprint(p[k])))
	}

	if len(pairs) == 0 {
		return ""
	}
	return "?" + strings.Join(pairs, "&")
}
