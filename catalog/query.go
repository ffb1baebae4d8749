package catalog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/stevecastle/wallkit/errs"
)

// Condition is one field:value term of a search query.
type Condition struct {
	Field    string
	Operator string
	Value    string
	Negate   bool
	// Logic joins this condition to the previous one ("AND" or "OR").
	Logic string
}

// Query is a parsed search query.
type Query struct {
	Conditions []Condition
}

var conditionRegex = regexp.MustCompile(`(?:(AND|OR)\s+)?(NOT\s+)?(\w+):("[^"]*"|\S+)`)

// Fields lists the searchable fields.
var Fields = []string{"title", "type", "rating", "name", "description", "collection", "tag", "packaged"}

// ParseQuery parses a query such as
//
//	title:"blue *" AND NOT rating:Mature
//	collection:favourites OR tag:sky
//	packaged:false
//
// Values containing * match as wildcards. Text with no field:value terms
// matches titles containing it.
func ParseQuery(query string) (*Query, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	matches := conditionRegex.FindAllStringSubmatch(query, -1)
	if len(matches) == 0 {
		return &Query{Conditions: []Condition{{
			Field:    "title",
			Operator: "LIKE",
			Value:    "%" + query + "%",
		}}}, nil
	}

	q := &Query{}
	for i, m := range matches {
		c := Condition{
			Logic:  m[1],
			Negate: strings.TrimSpace(m[2]) == "NOT",
			Field:  strings.ToLower(m[3]),
			Value:  strings.Trim(m[4], `"`),
		}
		if i == 0 {
			c.Logic = ""
		} else if c.Logic == "" {
			c.Logic = "AND"
		}
		if !known(c.Field) {
			return nil, errs.Invalid("catalog.ParseQuery", fmt.Sprintf("unknown field %q (want one of %s)", c.Field, strings.Join(Fields, ", ")))
		}
		if strings.Contains(c.Value, "*") {
			c.Operator = "LIKE"
			c.Value = strings.ReplaceAll(c.Value, "*", "%")
		} else {
			c.Operator = "="
		}
		if c.Field == "packaged" {
			switch strings.ToLower(c.Value) {
			case "true", "yes", "1":
				c.Value = "1"
			case "false", "no", "0":
				c.Value = "0"
			default:
				return nil, errs.Invalid("catalog.ParseQuery", "packaged takes true or false, got "+c.Value)
			}
			c.Operator = "="
		}
		q.Conditions = append(q.Conditions, c)
	}
	return q, nil
}

func known(field string) bool {
	for _, f := range Fields {
		if f == field {
			return true
		}
	}
	return false
}

// buildWhereClause converts q into a WHERE clause over items aliased as i.
func buildWhereClause(q *Query) (string, []any) {
	if q == nil || len(q.Conditions) == 0 {
		return "", nil
	}

	var (
		clauses []string
		args    []any
	)
	for _, c := range q.Conditions {
		var clause string
		switch c.Field {
		case "title", "type", "rating", "description":
			clause = fmt.Sprintf("i.%s %s ?", c.Field, c.Operator)
		case "name":
			clause = fmt.Sprintf("i.id %s ?", c.Operator)
		case "packaged":
			clause = "i.packaged = ?"
		case "collection":
			clause = fmt.Sprintf("EXISTS (SELECT 1 FROM item_collections ic WHERE ic.item_path = i.path AND ic.label %s ?)", c.Operator)
		case "tag":
			clause = fmt.Sprintf("EXISTS (SELECT 1 FROM item_tags it WHERE it.item_path = i.path AND it.label %s ?)", c.Operator)
		}
		if c.Negate {
			clause = "NOT (" + clause + ")"
		}
		if c.Field == "packaged" {
			args = append(args, c.Value == "1")
		} else {
			args = append(args, c.Value)
		}

		if c.Logic != "" {
			clauses = append(clauses, c.Logic)
		}
		clauses = append(clauses, clause)
	}
	return "WHERE " + strings.Join(clauses, " "), args
}
