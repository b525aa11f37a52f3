package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSchemaDrift is returned when a source table lacks a column the pipeline reads.
var ErrSchemaDrift = errors.New("schema drift")

// RequireColumns fails fast when any of want is absent from have. Column
// names compare case-insensitively.
func RequireColumns(table string, have, want []string) error {
	present := make(map[string]struct{}, len(have))
	for _, c := range have {
		present[strings.ToLower(c)] = struct{}{}
	}

	var missing []string
	for _, c := range want {
		if _, ok := present[strings.ToLower(c)]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: table %s is missing required columns [%s]", ErrSchemaDrift, table, strings.Join(missing, ", "))
	}
	return nil
}
