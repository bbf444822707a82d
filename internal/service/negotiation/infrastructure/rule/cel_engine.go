// internal/service/negotiation/infrastructure/rule/cel_engine.go
package rule

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"haggle/internal/service/negotiation/domain"
)

// CelPolicyEngine 是 domain.PolicyEngine 的 cel-go 实现。
// 议价资格规则是一条 CEL 表达式，例如:
//
//	base_price >= 100.0 && category != 'gift_card'
//
// 规则在构造时编译一次，之后的每次评估只是执行。
type CelPolicyEngine struct {
	program cel.Program
}

// NewCelPolicyEngine 编译规则表达式。规则为空表示所有商品都可议价。
func NewCelPolicyEngine(expr string) (*CelPolicyEngine, error) {
	if expr == "" {
		return &CelPolicyEngine{}, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("sku", cel.StringType),
		cel.Variable("base_price", cel.DoubleType),
		cel.Variable("category", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build cel environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid negotiability rule %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("negotiability rule %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build cel program: %w", err)
	}
	return &CelPolicyEngine{program: program}, nil
}

// Negotiable 实现 domain.PolicyEngine。
func (e *CelPolicyEngine) Negotiable(ctx context.Context, fact domain.PolicyFact) (bool, error) {
	if e.program == nil {
		return true, nil
	}

	out, _, err := e.program.ContextEval(ctx, map[string]interface{}{
		"sku":        fact.SKU,
		"base_price": fact.BasePrice,
		"category":   fact.Category,
	})
	if err != nil {
		return false, fmt.Errorf("rule evaluation failed: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule returned non-bool result %T", out.Value())
	}
	return result, nil
}
