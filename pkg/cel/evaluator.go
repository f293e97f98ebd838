package cel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"promopush/pkg/models"
)

// Evaluator compiles boolean filter expressions over campaign event fields.
//
// Available variables: restaurant_id, adv_campaign_id, adv_campaign_content,
// adv_campaign_owner, adv_campaign_owner_contact (string); datetime_start, datetime_end,
// datetime_created (int or null); now (int, unix seconds).
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("restaurant_id", cel.StringType),
		cel.Variable("adv_campaign_id", cel.StringType),
		cel.Variable("adv_campaign_content", cel.StringType),
		cel.Variable("adv_campaign_owner", cel.StringType),
		cel.Variable("adv_campaign_owner_contact", cel.StringType),
		cel.Variable("datetime_start", cel.DynType),
		cel.Variable("datetime_end", cel.DynType),
		cel.Variable("datetime_created", cel.DynType),
		cel.Variable("now", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

type Program struct {
	expression string
	program    cel.Program
}

func (p *Program) Expression() string {
	return p.expression
}

// CompileFilter type-checks expression and rejects anything that is not boolean.
func (e *Evaluator) CompileFilter(expression string) (*Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Program{expression: expression, program: program}, nil
}

func (p *Program) Eval(ctx context.Context, ev models.CampaignEvent, now time.Time) (bool, error) {
	vars := map[string]interface{}{
		"restaurant_id":              ev.RestaurantID,
		"adv_campaign_id":            ev.AdvCampaignID,
		"adv_campaign_content":       ev.AdvCampaignContent,
		"adv_campaign_owner":         ev.AdvCampaignOwner,
		"adv_campaign_owner_contact": ev.AdvCampaignOwnerContact,
		"datetime_start":             nullableInt(ev.DatetimeStart),
		"datetime_end":               nullableInt(ev.DatetimeEnd),
		"datetime_created":           nullableInt(ev.DatetimeCreated),
		"now":                        now.Unix(),
	}

	result, _, err := p.program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

func nullableInt(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
