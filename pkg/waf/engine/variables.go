package engine

import (
	"strconv"

	"sentra-hq/bastion/pkg/waf"
)

// attrValue is one extracted request value. Name carries the concrete
// attribute name (header, argument or cookie) for variables that have
// one; it is what exclusions select on.
type attrValue struct {
	name  string
	value string
}

// extractValues returns every value of the given variable visible in the
// request. An empty selector on a named-attribute variable yields all
// values of that kind; a selector narrows to one name. The variable set
// is closed, so the dispatch is exhaustive.
func extractValues(req *RequestContext, variable waf.MatchVariable, selector string) []attrValue {
	switch variable {
	case waf.VarRequestURI:
		return []attrValue{{value: req.URI}}

	case waf.VarRequestMethod:
		return []attrValue{{value: req.Method}}

	case waf.VarRemoteAddr:
		return []attrValue{{value: req.ClientIP}}

	case waf.VarRequestHeaders:
		if selector != "" {
			vals := req.Headers.Values(selector)
			out := make([]attrValue, 0, len(vals))
			for _, v := range vals {
				out = append(out, attrValue{name: selector, value: v})
			}
			return out
		}
		var out []attrValue
		for name, vals := range req.Headers {
			for _, v := range vals {
				out = append(out, attrValue{name: name, value: v})
			}
		}
		return out

	case waf.VarQueryArgs:
		return mapValues(req.QueryArgs, selector)

	case waf.VarPostArgs:
		return mapValues(req.PostArgs, selector)

	case waf.VarCookies:
		return mapValues(req.Cookies, selector)

	case waf.VarRequestBody:
		if len(req.Body) == 0 {
			return nil
		}
		return []attrValue{{value: string(req.Body)}}

	case waf.VarRequestBodySize:
		return []attrValue{{value: strconv.Itoa(len(req.Body))}}

	default:
		return nil
	}
}

func mapValues(m map[string][]string, selector string) []attrValue {
	if selector != "" {
		vals := m[selector]
		out := make([]attrValue, 0, len(vals))
		for _, v := range vals {
			out = append(out, attrValue{name: selector, value: v})
		}
		return out
	}
	var out []attrValue
	for name, vals := range m {
		for _, v := range vals {
			out = append(out, attrValue{name: name, value: v})
		}
	}
	return out
}
