// Package quality evaluates data-quality rules against records before they
// are loaded. A failed rule is counted and logged; it never stops a load.
package quality

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"moviemigrate/internal/config"
	"moviemigrate/internal/logging"
	"moviemigrate/internal/records"

	"github.com/Knetic/govaluate"
	"github.com/google/uuid"
)

// maxLoggedIssues caps per-page warning lines; the rest only count.
const maxLoggedIssues = 5

// Builtin returns the rules every run checks.
func Builtin() []config.QualityRule {
	return []config.QualityRule{
		{Name: "rating_range", Table: "film_work", Expression: "rating >= 0 && rating <= 100"},
		{Name: "film_work_type", Table: "film_work", Expression: fmt.Sprintf("type IN ('%s', '%s')", records.TypeMovie, records.TypeTVShow)},
		{Name: "title_present", Table: "film_work", Expression: "title != ''"},
		{Name: "genre_name_present", Table: "genre", Expression: "name != ''"},
		{Name: "person_name_present", Table: "person", Expression: "full_name != ''"},
		{
			Name:       "person_role",
			Table:      "person_film_work",
			Expression: fmt.Sprintf("role IN ('%s', '%s', '%s')", records.RoleActor, records.RoleDirector, records.RoleWriter),
		},
	}
}

// Rule is one compiled expression bound to an entity kind.
type Rule struct {
	Name string
	Kind records.Kind
	expr *govaluate.EvaluableExpression
}

// Issue is a rule a record did not satisfy. Err is set when the
// expression could not be evaluated or did not yield a boolean.
type Issue struct {
	Rule string
	ID   uuid.UUID
	Err  error
}

func (i Issue) String() string {
	if i.Err != nil {
		return fmt.Sprintf("rule '%s' on %s: %v", i.Rule, i.ID, i.Err)
	}
	return fmt.Sprintf("rule '%s' failed for %s", i.Rule, i.ID)
}

// Checker holds the compiled rules per kind.
type Checker struct {
	rules map[records.Kind][]Rule
}

// New compiles the built-in rules followed by extra. A rule in extra with
// the name of a built-in replaces it.
func New(extra []config.QualityRule) (*Checker, error) {
	all := Builtin()
	for _, r := range extra {
		replaced := false
		for i := range all {
			if all[i].Name == r.Name {
				all[i] = r
				replaced = true
			}
		}
		if !replaced {
			all = append(all, r)
		}
	}

	c := &Checker{rules: make(map[records.Kind][]Rule)}
	for _, r := range all {
		kind, err := records.ParseKind(r.Table)
		if err != nil {
			return nil, fmt.Errorf("quality rule '%s': %w", r.Name, err)
		}
		expr, err := govaluate.NewEvaluableExpression(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("quality rule '%s': invalid expression '%s': %w", r.Name, r.Expression, err)
		}
		for _, v := range expr.Vars() {
			if !records.HasColumn(kind, v) {
				return nil, fmt.Errorf("quality rule '%s': unknown column '%s' for table '%s'", r.Name, v, kind.Table())
			}
		}
		c.rules[kind] = append(c.rules[kind], Rule{Name: r.Name, Kind: kind, expr: expr})
	}
	return c, nil
}

// Rules returns the rule names that apply to kind, sorted.
func (c *Checker) Rules(kind records.Kind) []string {
	names := make([]string, 0, len(c.rules[kind]))
	for _, r := range c.rules[kind] {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names
}

// Check evaluates every rule of rec's kind and returns the failures.
func (c *Checker) Check(rec records.Record) []Issue {
	rules := c.rules[rec.Kind()]
	if len(rules) == 0 {
		return nil
	}
	params := Parameters(rec)
	var issues []Issue
	for _, r := range rules {
		result, err := r.expr.Evaluate(params)
		if err != nil {
			issues = append(issues, Issue{Rule: r.Name, ID: rec.Identifier(), Err: err})
			continue
		}
		ok, isBool := result.(bool)
		if !isBool {
			issues = append(issues, Issue{Rule: r.Name, ID: rec.Identifier(), Err: fmt.Errorf("expression yielded %T, not bool", result)})
			continue
		}
		if !ok {
			issues = append(issues, Issue{Rule: r.Name, ID: rec.Identifier()})
		}
	}
	return issues
}

// CheckPage checks every record of one page, logs the first few issues
// and returns how many there were.
func (c *Checker) CheckPage(kind records.Kind, page []records.Record) int {
	if len(c.rules[kind]) == 0 {
		return 0
	}
	log := logging.For(kind.String())
	total := 0
	for _, rec := range page {
		for _, issue := range c.Check(rec) {
			if total < maxLoggedIssues {
				log.Logf(logging.Warning, "quality: %s", issue)
			}
			total++
		}
	}
	if total > maxLoggedIssues {
		log.Logf(logging.Warning, "quality: %d more issue(s) on this page not shown", total-maxLoggedIssues)
	}
	return total
}

// Parameters converts rec to govaluate parameters: numbers become float64,
// identifiers become their text form and timestamps become Unix seconds so
// they compare against date literals such as '2020-01-01'.
func Parameters(rec records.Record) map[string]interface{} {
	raw := records.ToMap(rec)
	params := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case int:
			params[k] = float64(x)
		case uuid.UUID:
			params[k] = x.String()
		case time.Time:
			params[k] = float64(x.Unix())
		case string:
			params[k] = strings.TrimSpace(x)
		default:
			params[k] = v
		}
	}
	return params
}
