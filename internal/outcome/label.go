package outcome

import (
	"fmt"
	"os"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"
)

// #region rules

// LabelRules holds the operator-supplied CEL predicates that resolve raw
// outcome-event attributes into binary labels. Labeling semantics stay a
// business concern: this package only evaluates what the rules file says.
//
// Example rules file:
//
//	final: event.stage == "committed"
//	proxy: int(event.messages_exchanged) >= 3
type LabelRules struct {
	Final string `yaml:"final"`
	Proxy string `yaml:"proxy"`
}

// #endregion

// #region labeler

// Labeler evaluates compiled label rules against event attribute maps.
type Labeler struct {
	final cel.Program
	proxy cel.Program
}

// newLabelEnv declares the single `event` variable the rules see: the raw
// attribute map attached to an outcome event.
func newLabelEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("event", cel.MapType(cel.StringType, cel.DynType)),
	)
}

// NewLabeler compiles both rule expressions. A rules struct with an empty
// expression for either label yields a labeler that leaves that label
// unresolved.
func NewLabeler(rules LabelRules) (*Labeler, error) {
	env, err := newLabelEnv()
	if err != nil {
		return nil, fmt.Errorf("label env: %w", err)
	}

	l := &Labeler{}
	if rules.Final != "" {
		l.final, err = compileRule(env, rules.Final)
		if err != nil {
			return nil, fmt.Errorf("final label rule: %w", err)
		}
	}
	if rules.Proxy != "" {
		l.proxy, err = compileRule(env, rules.Proxy)
		if err != nil {
			return nil, fmt.Errorf("proxy label rule: %w", err)
		}
	}
	return l, nil
}

// LoadLabeler reads a YAML rules file and compiles it.
func LoadLabeler(path string) (*Labeler, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rules LabelRules
	if err := yaml.Unmarshal(content, &rules); err != nil {
		return nil, fmt.Errorf("parse label rules: %w", err)
	}
	return NewLabeler(rules)
}

func compileRule(env *cel.Env, expr string) (cel.Program, error) {
	ast, iss := env.Parse(expr)
	if iss.Err() != nil {
		return nil, iss.Err()
	}
	checked, iss := env.Check(ast)
	if iss.Err() != nil {
		return nil, iss.Err()
	}
	return env.Program(checked)
}

// #endregion

// #region apply

// Apply resolves the final and proxy labels for one event attribute map.
// A rule that errors or returns a non-boolean leaves its label unresolved
// rather than interrupting the fetch.
func (l *Labeler) Apply(attrs map[string]any) (final, proxy *bool) {
	return evalRule(l.final, attrs), evalRule(l.proxy, attrs)
}

func evalRule(prog cel.Program, attrs map[string]any) *bool {
	if prog == nil {
		return nil
	}
	result, _, err := prog.Eval(map[string]any{"event": attrs})
	if err != nil {
		return nil
	}
	b, ok := result.Value().(bool)
	if !ok {
		return nil
	}
	return &b
}

// #endregion
