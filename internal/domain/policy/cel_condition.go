package policy

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/request"
)

// maxExpressionLength bounds CEL expression size.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit to prevent cost-exhaustion.
const maxCostBudget = 100_000

// maxNestingDepth bounds parenthesis/bracket nesting in expressions.
const maxNestingDepth = 50

var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error
)

// expressionEnv returns the shared CEL environment exposing the request
// attributes a rule expression may reference.
func expressionEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("agent_id", cel.StringType),
			cel.Variable("action_type", cel.StringType),
			cel.Variable("target_resource", cel.StringType),
			cel.Variable("parameters", cel.MapType(cel.StringType, cel.DynType)),
			cel.Variable("context", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return celEnv, celEnvErr
}

// expressionCondition matches when the compiled CEL program evaluates to
// true against the request attributes. Programs are compiled at rule
// parse time so malformed expressions are rejected before they reach the
// hot path.
type expressionCondition struct {
	src string
	prg cel.Program
}

func compileExpression(src string) (Condition, error) {
	if src == "" {
		return nil, fmt.Errorf("expression is empty")
	}
	if len(src) > maxExpressionLength {
		return nil, fmt.Errorf("expression too long: %d characters (max %d)", len(src), maxExpressionLength)
	}
	if err := validateNesting(src); err != nil {
		return nil, err
	}

	env, err := expressionEnv()
	if err != nil {
		return nil, fmt.Errorf("cel environment: %w", err)
	}
	ast, issues := env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}
	prg, err := env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}
	return expressionCondition{src: src, prg: prg}, nil
}

func (c expressionCondition) Key() string { return KeyExpression }

func (c expressionCondition) Match(req *request.Request, _ time.Time) (bool, string) {
	out, _, err := c.prg.Eval(map[string]interface{}{
		"agent_id":        req.AgentID,
		"action_type":     req.ActionType,
		"target_resource": req.TargetResource,
		"parameters":      req.Parameters,
		"context":         req.Context,
	})
	if err != nil {
		// Evaluation errors (missing keys, type mismatches) mean the
		// expression does not hold for this request.
		return false, ""
	}
	matched, ok := out.Value().(bool)
	if !ok || !matched {
		return false, ""
	}
	return true, fmt.Sprintf("expression %q matched", c.src)
}

// validateNesting checks that the expression does not exceed the maximum
// allowed nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// ValidateExpression checks that a rule expression is syntactically valid
// and within safety limits. Exposed for the policy create path.
func ValidateExpression(src string) error {
	if strings.TrimSpace(src) == "" {
		return fmt.Errorf("expression is empty")
	}
	_, err := compileExpression(src)
	return err
}
