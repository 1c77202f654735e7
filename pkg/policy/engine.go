package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"

	"github.com/shardctl/shardctl/pkg/engine"
	"github.com/shardctl/shardctl/pkg/manifest"
)

// Engine evaluates Rego policies against a manifest.
type Engine struct {
	mu       sync.RWMutex
	policies []*compiledPolicy
	logger   zerolog.Logger
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(ctx context.Context, logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		logger: logger.With().Str("component", "policy-engine").Logger(),
	}

	builtins := GetBuiltinPolicies()
	for i := range builtins {
		if err := e.add(ctx, &builtins[i]); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}

	e.logger.Debug().
		Int("count", len(builtins)).
		Msg("Built-in policies loaded")

	return e, nil
}

// LoadPolicies loads and compiles policy files or directories. A policy
// with the same name as a loaded one replaces it.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	return e.AddPolicies(ctx, policies...)
}

// AddPolicies compiles and adds policies.
func (e *Engine) AddPolicies(ctx context.Context, policies ...Policy) error {
	for i := range policies {
		p := policies[i]
		if err := e.add(ctx, &p); err != nil {
			e.logger.Error().Err(err).
				Str("policy", p.Name).
				Msg("Failed to compile policy")
			return fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
		}
	}
	return nil
}

func (e *Engine) add(ctx context.Context, policy *Policy) error {
	cp, err := compile(ctx, policy)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i, existing := range e.policies {
		if existing.policy.Name == policy.Name {
			e.policies[i] = cp
			return nil
		}
	}
	e.policies = append(e.policies, cp)

	e.logger.Debug().
		Str("policy", policy.Name).
		Msg("Policy compiled successfully")

	return nil
}

// compile parses the module and prepares a query for its deny set.
func compile(ctx context.Context, policy *Policy) (*compiledPolicy, error) {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	query := module.Package.Path.String() + ".deny"
	prepared, err := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(query),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	return &compiledPolicy{
		policy:   policy,
		module:   module,
		query:    prepared,
		compiled: time.Now(),
	}, nil
}

// Evaluate evaluates all enabled policies against the manifest.
func (e *Engine) Evaluate(ctx context.Context, m *manifest.Manifest, operation string) (*Result, error) {
	startTime := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	input := NewInput(m, operation)
	result := &Result{
		Allowed:           true,
		EvaluatedPolicies: make([]string, 0, len(e.policies)),
	}

	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, cp.policy.Name)

		violations, err := cp.evaluate(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", cp.policy.Name, err)
		}

		for _, v := range violations {
			if v.Severity.Blocking() {
				result.Violations = append(result.Violations, v)
				result.Allowed = false
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
	}

	result.Duration = time.Since(startTime)
	e.logger.Debug().
		Str("operation", operation).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration).
		Msg("Policy evaluation completed")

	return result, nil
}

// Check evaluates the manifest and turns blocking violations into a
// configuration error of kind PolicyViolation. Warnings are logged.
func (e *Engine) Check(ctx context.Context, m *manifest.Manifest, operation string) (*Result, error) {
	result, err := e.Evaluate(ctx, m, operation)
	if err != nil {
		return nil, engine.NewConfigurationError(engine.KindPolicyViolation, "policy evaluation failed", err)
	}

	for _, w := range result.Warnings {
		e.logger.Warn().
			Str("policy", w.Policy).
			Str("service", w.Service).
			Msg(w.Message)
	}

	if result.Allowed {
		return result, nil
	}

	msgs := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		msgs = append(msgs, v.String())
	}
	perr := engine.NewConfigurationError(engine.KindPolicyViolation,
		fmt.Sprintf("%d policy violation(s): %s", len(msgs), strings.Join(msgs, "; ")), nil)
	if len(result.Violations) == 1 && result.Violations[0].Service != "" {
		perr = perr.WithService(result.Violations[0].Service)
	}
	return result, perr
}

// evaluate runs the prepared deny query.
func (cp *compiledPolicy) evaluate(ctx context.Context, input Input) ([]Violation, error) {
	rs, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, r := range rs {
		if len(r.Expressions) == 0 {
			continue
		}
		denySet, ok := r.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, cp.violation(d))
		}
	}

	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].Service != violations[j].Service {
			return violations[i].Service < violations[j].Service
		}
		return violations[i].Message < violations[j].Message
	})
	return violations, nil
}

// violation creates a Violation from a deny element. Elements are either
// message strings or objects with msg/message, service and severity keys.
func (cp *compiledPolicy) violation(result interface{}) Violation {
	v := Violation{
		Policy:   cp.policy.Name,
		Severity: cp.policy.Severity,
	}

	switch d := result.(type) {
	case string:
		v.Message = d
	case map[string]interface{}:
		if msg, ok := d["msg"].(string); ok {
			v.Message = msg
		}
		if msg, ok := d["message"].(string); ok {
			v.Message = msg
		}
		if svc, ok := d["service"].(string); ok {
			v.Service = svc
		}
		if sev, ok := d["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}

	return v
}

// String formats the violation for error messages.
func (v Violation) String() string {
	if v.Service != "" {
		return fmt.Sprintf("%s: %s (%s)", v.Service, v.Message, v.Policy)
	}
	return fmt.Sprintf("%s (%s)", v.Message, v.Policy)
}

// ListPolicies returns all loaded policies in load order.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, *cp.policy)
	}
	return policies
}

// DisablePolicy stops a loaded policy from being evaluated.
func (e *Engine) DisablePolicy(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, cp := range e.policies {
		if cp.policy.Name == name {
			cp.policy.Enabled = false
			e.logger.Debug().Str("policy", name).Msg("Policy disabled")
			return nil
		}
	}
	return fmt.Errorf("policy not found: %s", name)
}
