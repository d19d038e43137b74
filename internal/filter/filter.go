// Package filter compiles CEL expressions for per-event filtering on the
// search and session query surfaces.
package filter

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/pulsekit/pulse/internal/event"
)

// Filter wraps a compiled CEL program. When disabled (empty expression),
// Eval always returns true.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// New compiles the expression. Empty input yields a disabled filter.
func New(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("session_id", cel.StringType),
		cel.Variable("producer_app", cel.StringType),
		cel.Variable("summary", cel.StringType),
		cel.Variable("priority", cel.IntType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		// Expose parsed JSON payload (map/list/values) for field filtering
		cel.Variable("json", cel.DynType),
		// Current time in ms for windowed filters
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Enabled reports whether an expression was compiled.
func (f Filter) Enabled() bool { return f.enabled }

// Eval evaluates the compiled expression against an event. When disabled,
// returns true. Evaluation errors count as non-matches.
func (f Filter) Eval(ev event.Event) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	if len(ev.Payload) > 0 {
		_ = json.Unmarshal(ev.Payload, &jsonObj)
	}
	out, _, err := f.prog.Eval(map[string]any{
		"kind":         ev.Kind,
		"session_id":   ev.SessionID,
		"producer_app": ev.ProducerApp,
		"summary":      ev.Summary,
		"priority":     int64(ev.Priority),
		"ts_ms":        ev.TsMs,
		"size":         int64(len(ev.Payload)),
		"text":         string(ev.Payload),
		"json":         jsonObj,
		"now_ms":       time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
