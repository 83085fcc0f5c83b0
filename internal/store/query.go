package store

import (
	"fmt"
	"strings"

	"github.com/roach88/parity/internal/ir"
)

// Predicate is a condition on run history rows.
//
// This is a sealed interface: only Equals, In and And implement it, so the
// compiler below can switch over every case.
type Predicate interface {
	predicateNode()
}

// Field is a filterable column of the runs table.
type Field string

const (
	FieldStatus       Field = "status"
	FieldRisk         Field = "risk"
	FieldErrorCode    Field = "error_code"
	FieldSymbolName   Field = "symbol_name"
	FieldSymbolModule Field = "symbol_module"
)

// columns maps fields to SQL. Only these identifiers ever reach a query;
// values are always bound as parameters.
var columns = map[Field]string{
	FieldStatus:       "r.status",
	FieldRisk:         "r.risk",
	FieldErrorCode:    "r.error_code",
	FieldSymbolName:   "r.symbol_name",
	FieldSymbolModule: "r.symbol_module",
}

// Equals matches rows whose Field equals Value.
type Equals struct {
	Field Field
	Value string
}

func (Equals) predicateNode() {}

// In matches rows whose Field equals any of Values. An empty In matches
// nothing.
type In struct {
	Field  Field
	Values []string
}

func (In) predicateNode() {}

// And matches rows that satisfy every predicate. An empty And matches
// everything.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// RunFilter is the history filter exposed on the command line. Empty fields
// do not constrain.
type RunFilter struct {
	Statuses  []ir.RunStatus
	Risk      ir.RiskTier
	ErrorCode string
	Symbol    string
}

// Predicate converts f. A zero filter yields an empty And.
func (f RunFilter) Predicate() Predicate {
	var and And
	if len(f.Statuses) > 0 {
		vals := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			vals[i] = string(s)
		}
		and.Predicates = append(and.Predicates, In{Field: FieldStatus, Values: vals})
	}
	if f.Risk != "" {
		and.Predicates = append(and.Predicates, Equals{Field: FieldRisk, Value: string(f.Risk)})
	}
	if f.ErrorCode != "" {
		and.Predicates = append(and.Predicates, Equals{Field: FieldErrorCode, Value: f.ErrorCode})
	}
	if f.Symbol != "" {
		and.Predicates = append(and.Predicates, Equals{Field: FieldSymbolName, Value: f.Symbol})
	}
	return and
}

// compileWhere compiles p into a WHERE fragment with ? placeholders.
// A nil predicate is always true.
func compileWhere(p Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case Equals:
		col, err := column(pred.Field)
		if err != nil {
			return "", nil, err
		}
		return col + " = ?", []any{pred.Value}, nil
	case In:
		col, err := column(pred.Field)
		if err != nil {
			return "", nil, err
		}
		if len(pred.Values) == 0 {
			return "1 = 0", nil, nil
		}
		params := make([]any, len(pred.Values))
		for i, v := range pred.Values {
			params[i] = v
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(params)), ", ")
		return fmt.Sprintf("%s IN (%s)", col, marks), params, nil
	case And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		parts := make([]string, 0, len(pred.Predicates))
		var params []any
		for _, sub := range pred.Predicates {
			sql, subParams, err := compileWhere(sub)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, "("+sql+")")
			params = append(params, subParams...)
		}
		return strings.Join(parts, " AND "), params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func column(f Field) (string, error) {
	col, ok := columns[f]
	if !ok {
		return "", fmt.Errorf("unknown field %q", f)
	}
	return col, nil
}
