package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/txsignal/internal/records"
	"github.com/roach88/txsignal/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionContext gives assertions access to the durable state.
type AssertionContext struct {
	Ctx     context.Context
	Store   *store.Store
	Readers func(kind string) *records.Reader

	// Kind is the scenario kind, used when an assertion names none.
	Kind string
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			names := make([]string, len(event.Listeners))
			for i, l := range event.Listeners {
				names[i] = l.Listener
			}
			fmt.Fprintf(&buf, "  [%d] create %q -> %s %v\n", event.Step, event.Name, event.Status, names)
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion and returns failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertDispatchOrder:
			err = assertDispatchOrder(result.Trace, a)
		case AssertInvocationCount:
			err = assertInvocationCount(result.Trace, a)
		case AssertListenerSaw:
			err = assertListenerSaw(result.Trace, a)
		case AssertFinalCount:
			err = assertFinalCount(actx, a)
		case AssertFinalState:
			err = assertFinalState(actx.Ctx, actx.Store, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// invocations flattens the trace into listener invocations, in order.
func invocations(trace []TraceEvent) []ListenerTrace {
	var out []ListenerTrace
	for _, event := range trace {
		out = append(out, event.Listeners...)
	}
	return out
}

// assertDispatchOrder checks that listeners were first invoked in the given
// order. Other invocations may come in between.
func assertDispatchOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, inv := range invocations(trace) {
		if _, seen := positions[inv.Listener]; !seen {
			positions[inv.Listener] = i + 1 // 1-indexed for readability
		}
	}

	for _, name := range assertion.Listeners {
		if positions[name] == 0 {
			return &AssertionError{
				Type:     AssertDispatchOrder,
				Expected: fmt.Sprintf("all listeners invoked: %v", assertion.Listeners),
				Actual:   fmt.Sprintf("%s never invoked", name),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Listeners); i++ {
		prev := assertion.Listeners[i-1]
		curr := assertion.Listeners[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertDispatchOrder,
				Expected: fmt.Sprintf("listeners in order: %v", assertion.Listeners),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertInvocationCount checks that a listener ran exactly Count times.
func assertInvocationCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, inv := range invocations(trace) {
		if inv.Listener == assertion.Listener {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertInvocationCount,
			Expected: fmt.Sprintf("%d invocations of %s", assertion.Count, assertion.Listener),
			Actual:   fmt.Sprintf("%d invocations", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertListenerSaw checks the count a listener observed while handling the
// named record. Any matching invocation passes.
func assertListenerSaw(trace []TraceEvent, assertion Assertion) error {
	var seen []int
	for _, event := range trace {
		if event.Name != assertion.Record {
			continue
		}
		for _, l := range event.Listeners {
			if l.Listener != assertion.Listener {
				continue
			}
			if l.Count == assertion.Count {
				return nil
			}
			seen = append(seen, l.Count)
		}
	}

	actual := "listener never handled the record"
	if len(seen) > 0 {
		actual = fmt.Sprintf("observed counts %v", seen)
	}
	return &AssertionError{
		Type:     AssertListenerSaw,
		Expected: fmt.Sprintf("%s to observe count %d for %q", assertion.Listener, assertion.Count, assertion.Record),
		Actual:   actual,
		Trace:    trace,
	}
}

// assertFinalCount checks the committed count for a kind.
func assertFinalCount(actx *AssertionContext, assertion Assertion) error {
	kind := assertion.Kind
	if kind == "" {
		kind = actx.Kind
	}

	n, err := actx.Readers(kind).Count(actx.Ctx)
	if err != nil {
		return fmt.Errorf("count %s: %w", kind, err)
	}
	if n != assertion.Count {
		return &AssertionError{
			Type:     AssertFinalCount,
			Expected: fmt.Sprintf("%d committed %s records", assertion.Count, kind),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// assertFinalState checks that exactly one row matches Where and that it
// carries the expected values.
//
// Security: Table and column names are validated against a whitelist pattern
// to prevent SQL injection via identifier interpolation.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.Query(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]any, len(columns))
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	// Subset semantics: only fields in Expect are checked.
	for _, key := range sortedKeys(assertion.Expect) {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}

		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// buildWhereClause constructs a parameterized WHERE clause. Keys are sorted
// for determinism.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := sortedKeys(where)
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))

	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}

	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML value to a SQL-compatible value.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case string, int, int64, bool:
		return val
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause renders a where map for error messages.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(all rows)"
	}
	parts := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, ", ")
}

// stateValuesEqual compares a YAML-decoded expected value with a value
// scanned from SQLite. SQLite returns int64 for integers and string or
// []byte for text.
func stateValuesEqual(expected, actual any) bool {
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch e := expected.(type) {
	case int:
		a, ok := actual.(int64)
		return ok && a == int64(e)
	case int64:
		a, ok := actual.(int64)
		return ok && a == e
	case float64:
		switch a := actual.(type) {
		case int64:
			return float64(a) == e
		case float64:
			return a == e
		}
		return false
	case bool:
		a, ok := actual.(int64)
		return ok && (a != 0) == e
	case nil:
		return actual == nil
	default:
		return reflect.DeepEqual(expected, actual)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
