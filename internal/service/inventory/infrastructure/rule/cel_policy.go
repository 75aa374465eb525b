// internal/service/inventory/infrastructure/rule/cel_policy.go
package rule

import (
	"context"

	"stockledger/internal/pkg/bootstrap"
	"stockledger/internal/pkg/logger"
	"stockledger/internal/service/inventory/domain"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// CELPolicy 用 CEL 表达式评估补货规则，规则来自配置，启动时编译。
// 表达式可引用的变量：on_hand / reserved / available / reorder_level / max_stock。
type CELPolicy struct {
	programs []compiledRule
}

type compiledRule struct {
	name    string
	program cel.Program
}

// NewCELPolicy 编译配置里的全部规则，任何一条编译失败都拒绝启动。
func NewCELPolicy(rules []bootstrap.ReplenishRule) (*CELPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("on_hand", cel.IntType),
		cel.Variable("reserved", cel.IntType),
		cel.Variable("available", cel.IntType),
		cel.Variable("reorder_level", cel.IntType),
		cel.Variable("max_stock", cel.IntType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel env")
	}

	policy := &CELPolicy{}
	for _, r := range rules {
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, errors.Wrapf(issues.Err(), "compile rule %s", r.Name)
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, errors.Wrapf(err, "build program for rule %s", r.Name)
		}
		policy.programs = append(policy.programs, compiledRule{name: r.Name, program: prg})
	}
	return policy, nil
}

// ShouldReorder 按配置顺序评估规则，返回第一条命中的规则名。
func (p *CELPolicy) ShouldReorder(ctx context.Context, item *domain.InventoryItem) (bool, string, error) {
	vars := map[string]interface{}{
		"on_hand":       int64(item.QuantityOnHand),
		"reserved":      int64(item.QuantityReserved),
		"available":     int64(item.QuantityAvailable),
		"reorder_level": int64(item.ReorderLevel),
		"max_stock":     int64(item.MaxStockLevel),
	}
	for _, r := range p.programs {
		out, _, err := r.program.Eval(vars)
		if err != nil {
			// 单条规则求值异常不影响其他规则
			logger.Ctx(ctx).Warn().Err(err).Str("rule", r.name).Msg("replenish rule evaluation failed")
			continue
		}
		if matched, ok := out.Value().(bool); ok && matched {
			return true, r.name, nil
		}
	}
	return false, "", nil
}

// NoopPolicy 在未配置任何规则时使用。
type NoopPolicy struct{}

func (NoopPolicy) ShouldReorder(context.Context, *domain.InventoryItem) (bool, string, error) {
	return false, "", nil
}
