// Package rules evaluates CEL health alert rules against recorded evaluations.
package rules

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"gopkg.in/yaml.v3"

	"github.com/tozzy2012/CSM-APP-2025-v0-sub001/internal/domain"
)

// Engine is the CEL-based alert rule engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
	now           func() time.Time
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.AlertRule
	Program cel.Program
}

// NewEngine creates an alert engine. Expressions see account_id,
// evaluated_by, total_score, classification, pillar_scores and response_count.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	env, err := cel.NewEnv(
		cel.Variable("account_id", cel.StringType),
		cel.Variable("evaluated_by", cel.StringType),
		cel.Variable("total_score", cel.IntType),
		cel.Variable("classification", cel.StringType),
		cel.Variable("pillar_scores", cel.MapType(cel.StringType, cel.IntType)),
		cel.Variable("response_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
		now:           time.Now,
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(rule *domain.AlertRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}
	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads a rule, replacing any rule with the same ID.
func (e *Engine) LoadRule(rule *domain.AlertRule) error {
	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.compiledRules[rule.ID] = compiled
	e.mu.Unlock()
	return nil
}

// ReloadRules atomically replaces the loaded set with the enabled rules.
// On error the previous set stays active.
func (e *Engine) ReloadRules(rules []*domain.AlertRule) error {
	next := make(map[string]*CompiledRule)
	for i, r := range rules {
		if r == nil {
			return fmt.Errorf("rule %d is empty", i)
		}
		if !r.Enabled {
			continue
		}
		if _, dup := next[r.ID]; dup {
			return fmt.Errorf("duplicate rule id %s", r.ID)
		}
		compiled, err := e.compileRule(r)
		if err != nil {
			return err
		}
		next[r.ID] = compiled
	}

	e.mu.Lock()
	e.compiledRules = next
	e.mu.Unlock()
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// LoadedRules returns the loaded rules ordered by ID.
func (e *Engine) LoadedRules() []*domain.AlertRule {
	compiled := e.snapshot()
	out := make([]*domain.AlertRule, len(compiled))
	for i, c := range compiled {
		out[i] = c.Rule
	}
	return out
}

// Evaluate runs every loaded rule against eval and returns the alerts of the
// rules that matched, ordered by rule ID. A rule that fails at runtime is
// reported in the returned error and does not stop the others.
func (e *Engine) Evaluate(ctx context.Context, eval *domain.Evaluation) ([]domain.Alert, error) {
	rules := e.snapshot()
	if len(rules) == 0 || eval == nil {
		return nil, nil
	}

	activation := Activation(eval)
	raisedAt := e.now().UTC()

	matched := make([]bool, len(rules))
	errs := make([]error, len(rules))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				errs[idx] = ctx.Err()
				return
			}
			matched[idx], errs[idx] = evaluateRule(r, activation)
		}(i, rule)
	}
	wg.Wait()

	var alerts []domain.Alert
	var failures []string
	for i, r := range rules {
		if errs[i] != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", r.Rule.ID, errs[i]))
			continue
		}
		if matched[i] {
			alerts = append(alerts, newAlert(r.Rule, eval, raisedAt))
		}
	}

	if len(failures) > 0 {
		return alerts, fmt.Errorf("alert rules failed: %s", strings.Join(failures, "; "))
	}
	return alerts, nil
}

// Activation builds the CEL variables for an evaluation.
func Activation(eval *domain.Evaluation) map[string]any {
	pillars := make(map[string]int64, len(eval.PilarScores))
	for p, s := range eval.PilarScores {
		pillars[p] = int64(s)
	}
	return map[string]any{
		"account_id":     eval.AccountID,
		"evaluated_by":   eval.EvaluatedBy,
		"total_score":    int64(eval.TotalScore),
		"classification": string(eval.Classification),
		"pillar_scores":  pillars,
		"response_count": int64(len(eval.Responses)),
	}
}

func evaluateRule(rule *CompiledRule, activation map[string]any) (bool, error) {
	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		return false, err
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("expected bool result, got %v", out.Type())
	}
	return bool(b), nil
}

func newAlert(rule *domain.AlertRule, eval *domain.Evaluation, raisedAt time.Time) domain.Alert {
	msg := strings.NewReplacer(
		"{account_id}", eval.AccountID,
		"{total_score}", strconv.Itoa(eval.TotalScore),
		"{classification}", string(eval.Classification),
	).Replace(rule.Message)

	return domain.Alert{
		RuleID:         rule.ID,
		RuleName:       rule.Name,
		Severity:       rule.Severity,
		Message:        msg,
		AccountID:      eval.AccountID,
		EvaluationID:   eval.ID,
		TotalScore:     eval.TotalScore,
		Classification: eval.Classification,
		RaisedAt:       raisedAt,
	}
}

func (e *Engine) snapshot() []*CompiledRule {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, r := range e.compiledRules {
		rules = append(rules, r)
	}
	e.mu.RUnlock()

	sort.Slice(rules, func(i, j int) bool { return rules[i].Rule.ID < rules[j].Rule.ID })
	return rules
}

func (e *Engine) compileRule(rule *domain.AlertRule) (*CompiledRule, error) {
	if rule == nil {
		return nil, fmt.Errorf("rule is required")
	}
	if rule.ID == "" {
		return nil, fmt.Errorf("rule id is required")
	}
	switch rule.Severity {
	case domain.SeverityInfo, domain.SeverityWarning, domain.SeverityCritical:
	default:
		return nil, fmt.Errorf("rule %s: unknown severity %q", rule.ID, rule.Severity)
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{Rule: rule, Program: program}, nil
}

type rulesFile struct {
	Rules []*domain.AlertRule `yaml:"rules"`
}

// LoadFile reads alert rules from a YAML document.
func LoadFile(path string) ([]*domain.AlertRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alert rules: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse alert rules %s: %w", path, err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("alert rules %s: no rules defined", path)
	}
	for i, r := range file.Rules {
		if r == nil {
			return nil, fmt.Errorf("alert rules %s: rule %d is empty", path, i)
		}
	}
	return file.Rules, nil
}
