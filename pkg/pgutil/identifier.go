// Package pgutil holds small helpers shared by the lib/pq backed repositories.
package pgutil

import (
	"strings"

	"github.com/lib/pq"
)

// QuoteQualified quotes a possibly schema-qualified table name, e.g. public.subscribers_feedback.
func QuoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}
