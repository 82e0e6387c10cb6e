package milvus

import (
	"sort"
	"strings"

	"github.com/poiesic/docsync/core"
)

// Field names in the collection schema.
const (
	fieldID        = "id"
	fieldText      = "text"
	fieldMetadata  = "metadata"
	fieldSource    = "source"
	fieldFormat    = "format"
	fieldYear      = "year"
	fieldEmbedding = "embedding"
)

// scalarFields maps metadata keys to the scalar columns that mirror them.
var scalarFields = map[string]string{
	core.MetaSource: fieldSource,
	core.MetaFormat: fieldFormat,
	core.MetaYear:   fieldYear,
}

var outputFields = []string{fieldID, fieldText, fieldMetadata}

// splitFilter builds a boolean expression over the scalar columns and
// returns the filter keys that have no column and must be checked after
// the search.
func splitFilter(filter core.Filter) (string, core.Filter) {
	if len(filter) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		clauses []string
		rest    core.Filter
	)
	for _, k := range keys {
		field, ok := scalarFields[k]
		if !ok {
			if rest == nil {
				rest = core.Filter{}
			}
			rest[k] = filter[k]
			continue
		}
		clauses = append(clauses, field+` == "`+escape(filter[k])+`"`)
	}
	return strings.Join(clauses, " && "), rest
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
