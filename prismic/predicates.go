package prismic

import (
	"strconv"
	"strings"
)

// Predicate is one clause of the query language, already rendered.
type Predicate string

// At matches documents whose path equals value exactly.
func At(path, value string) Predicate {
	return Predicate("[at(" + path + "," + strconv.Quote(value) + ")]")
}

// Any matches documents whose path equals one of values.
func Any(path string, values ...string) Predicate {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return Predicate("[any(" + path + ",[" + strings.Join(quoted, ",") + "])]")
}

// DocumentType is shorthand for At("document.type", typ).
func DocumentType(typ string) Predicate {
	return At("document.type", typ)
}

// JoinPredicates renders the q parameter for a list of predicates.
func JoinPredicates(ps []Predicate) string {
	var b strings.Builder
	b.WriteByte('[')
	for _, p := range ps {
		b.WriteString(string(p))
	}
	b.WriteByte(']')
	return b.String()
}
