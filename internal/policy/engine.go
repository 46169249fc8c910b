// Package policy provides the CEL-Go based decision override engine.
// Override rules run after the model pipeline and let a business escalate
// the recommended action without retraining or redeploying models; they
// never lower a decision below the model's own tier.
package policy

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/Saimudragada/fraud-detection-system/internal/domain"
)

// Engine is the CEL-based override evaluation engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.OverrideRule
	Program cel.Program
}

// NewEngine creates a new override engine.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("score", cel.DoubleType),
		cel.Variable("anomaly_score", cel.DoubleType),
		cel.Variable("classifier_score", cel.DoubleType),
		cel.Variable("tier", cel.StringType),
		cel.Variable("action", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("hour", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded rules.
func (e *Engine) ValidateRule(cfg *domain.OverrideRule) error {
	if cfg == nil {
		return fmt.Errorf("override rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.OverrideRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.OverrideRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.OverrideRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// LoadedRules returns the configs of all currently loaded rules.
func (e *Engine) LoadedRules() []*domain.OverrideRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.OverrideRule, 0, len(e.compiledRules))
	for _, r := range e.compiledRules {
		rules = append(rules, r.Config)
	}
	return rules
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// Apply evaluates the loaded rules against a scoring result and returns
// the possibly escalated decision. Escalation only: a matching rule whose
// target tier is not stricter than the current one is ignored. A rule
// evaluation error skips that rule; the model decision always stands.
func (e *Engine) Apply(ctx context.Context, tx *domain.Transaction, res *domain.ScoringResult) domain.RiskDecision {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, r := range e.compiledRules {
		rules = append(rules, r)
	}
	e.mu.RUnlock()

	decision := res.Decision
	if len(rules) == 0 {
		return decision
	}

	activation := map[string]any{
		"score":            res.Score.Value,
		"anomaly_score":    componentValue(res, domain.ScorerAnomaly),
		"classifier_score": componentValue(res, domain.ScorerClassifier),
		"tier":             string(decision.Tier),
		"action":           string(decision.Action),
		"amount":           tx.Amount,
		"hour":             hourOfDay(tx.ElapsedSecs),
	}

	for _, rule := range rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			continue
		}
		matched, ok := out.(types.Bool)
		if !ok || !bool(matched) {
			continue
		}
		if rule.Config.Tier.Severity() <= decision.Tier.Severity() {
			continue
		}
		decision.Tier = rule.Config.Tier
		decision.Action = rule.Config.Action
		decision.Overridden = true
		reason := rule.Config.Reason
		if reason == "" {
			reason = rule.Config.Name
		}
		decision.Reasons = append(decision.Reasons, reason)
	}

	return decision
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.OverrideRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile override rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("override rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	if cfg.Tier.Severity() == 0 {
		return nil, fmt.Errorf("override rule %s: escalation tier must be MEDIUM or HIGH", cfg.ID)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for override rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}

func componentValue(res *domain.ScoringResult, scorer string) float64 {
	for _, c := range res.Score.Components {
		if c.Scorer == scorer {
			return c.Value
		}
	}
	return 0
}

func hourOfDay(elapsedSecs float64) float64 {
	return math.Mod(elapsedSecs/3600, 24)
}
