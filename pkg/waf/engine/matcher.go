package engine

import (
	"net/netip"
	"strconv"
	"strings"

	"sentra-hq/bastion/pkg/waf"
)

// matchDetail carries audit information about where a condition matched.
type matchDetail struct {
	attribute string
	matched   string
	offset    int
}

// conditionSatisfied evaluates one compiled condition against the
// request. Values within a condition are OR-combined; negate inverts the
// final result. The returned detail describes the first match for
// Contains and RegEx operators.
func conditionSatisfied(req *RequestContext, cond *waf.CompiledCondition) (bool, matchDetail) {
	var values []attrValue
	if cond.Operator == waf.OpGeoMatch {
		// GeoMatch compares against the resolved country, whatever the
		// declared variable; an unresolved country never matches.
		values = []attrValue{{value: req.Country}}
	} else {
		values = extractValues(req, cond.Variable, cond.Selector)
	}

	satisfied := false
	var detail matchDetail

	for _, av := range values {
		ok, d := valueSatisfies(av, cond)
		if ok {
			satisfied = true
			detail = d
			break
		}
	}

	if cond.Negate {
		satisfied = !satisfied
	}
	return satisfied, detail
}

func valueSatisfies(av attrValue, cond *waf.CompiledCondition) (bool, matchDetail) {
	switch cond.Operator {
	case waf.OpContains:
		actual := fold(av.value, cond.CaseInsensitive)
		for _, want := range cond.Folded {
			if idx := strings.Index(actual, want); idx >= 0 {
				return true, matchDetail{attribute: av.name, matched: want, offset: idx}
			}
		}

	case waf.OpStartsWith:
		actual := fold(av.value, cond.CaseInsensitive)
		for _, want := range cond.Folded {
			if strings.HasPrefix(actual, want) {
				return true, matchDetail{attribute: av.name, matched: want}
			}
		}

	case waf.OpEndsWith:
		actual := fold(av.value, cond.CaseInsensitive)
		for _, want := range cond.Folded {
			if strings.HasSuffix(actual, want) {
				return true, matchDetail{attribute: av.name, matched: want, offset: len(actual) - len(want)}
			}
		}

	case waf.OpEquals:
		actual := fold(av.value, cond.CaseInsensitive)
		for _, want := range cond.Folded {
			if actual == want {
				return true, matchDetail{attribute: av.name, matched: want}
			}
		}

	case waf.OpRegex:
		for _, re := range cond.Regexps {
			if loc := re.FindStringIndex(av.value); loc != nil {
				return true, matchDetail{
					attribute: av.name,
					matched:   av.value[loc[0]:loc[1]],
					offset:    loc[0],
				}
			}
		}

	case waf.OpIPMatch:
		// An unparsable address fails open for this single condition.
		addr, err := netip.ParseAddr(av.value)
		if err != nil {
			return false, matchDetail{}
		}
		addr = addr.Unmap()
		for _, prefix := range cond.Prefixes {
			if prefix.Contains(addr) {
				return true, matchDetail{attribute: av.name, matched: prefix.String()}
			}
		}

	case waf.OpGeoMatch:
		country := strings.ToUpper(av.value)
		for _, want := range cond.Countries {
			if country == want {
				return true, matchDetail{attribute: av.name, matched: want}
			}
		}

	case waf.OpLessThan, waf.OpGreaterThan, waf.OpLessThanOrEqual, waf.OpGreaterThanOrEqual:
		// A non-numeric value means the condition is not satisfied,
		// never an error.
		actual, err := strconv.ParseFloat(strings.TrimSpace(av.value), 64)
		if err != nil {
			return false, matchDetail{}
		}
		for _, want := range cond.Numbers {
			if numericCompare(cond.Operator, actual, want) {
				return true, matchDetail{attribute: av.name}
			}
		}
	}

	return false, matchDetail{}
}

func numericCompare(op waf.Operator, actual, want float64) bool {
	switch op {
	case waf.OpLessThan:
		return actual < want
	case waf.OpGreaterThan:
		return actual > want
	case waf.OpLessThanOrEqual:
		return actual <= want
	case waf.OpGreaterThanOrEqual:
		return actual >= want
	default:
		return false
	}
}

func fold(s string, insensitive bool) string {
	if insensitive {
		return strings.ToLower(s)
	}
	return s
}
