package filtering

import (
	"context"
	"fmt"
	"strings"
	"time"

	"promopush/internal/config"
	"promopush/internal/constants"
	"promopush/internal/logger"
	"promopush/pkg/cel"
	"promopush/pkg/metrics"
	"promopush/pkg/models"
	"promopush/pkg/tracing"
)

type Clock func() time.Time

type Rule struct {
	Name    string
	program *cel.Program
}

type Service struct {
	rules   []Rule
	onError string
	now     Clock
	logger  logger.Logger
}

// NewService compiles the configured rules up front so a bad expression fails startup.
func NewService(cfg config.FilteringConfig, now Clock, log logger.Logger) (*Service, error) {
	if now == nil {
		now = time.Now
	}

	s := &Service{
		onError: strings.ToLower(cfg.Fallback.OnError),
		now:     now,
		logger:  log,
	}

	if len(cfg.Rules) == 0 {
		return s, nil
	}

	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	for _, rc := range cfg.Rules {
		program, err := evaluator.CompileFilter(rc.Expression)
		if err != nil {
			return nil, fmt.Errorf("failed to compile filter rule %q: %w", rc.Name, err)
		}
		s.rules = append(s.rules, Rule{Name: rc.Name, program: program})
	}

	return s, nil
}

// Filter keeps events whose window contains the current time and that pass every rule.
// The clock is read for each event.
func (s *Service) Filter(ctx context.Context, events []models.CampaignEvent) []models.CampaignEvent {
	ctx, span := tracing.GetTracer("filtering").Start(ctx, "filtering.filter")
	defer span.End()

	kept := make([]models.CampaignEvent, 0, len(events))
	outOfWindow, ruleRejected := 0, 0

	for _, ev := range events {
		now := s.now()
		if !Keep(ev, now) {
			outOfWindow++
			continue
		}
		if !s.passesRules(ctx, ev, now) {
			ruleRejected++
			continue
		}
		kept = append(kept, ev)
	}

	metrics.AddStageRecords("filter", "kept", len(kept))
	metrics.AddStageRecords("filter", "out_of_window", outOfWindow)
	metrics.AddStageRecords("filter", "rule_rejected", ruleRejected)

	if outOfWindow+ruleRejected > 0 {
		s.logger.DebugwCtx(ctx, "Events filtered",
			"kept", len(kept),
			"out_of_window", outOfWindow,
			"rule_rejected", ruleRejected,
		)
	}

	return kept
}

func (s *Service) passesRules(ctx context.Context, ev models.CampaignEvent, now time.Time) bool {
	for _, rule := range s.rules {
		ok, err := rule.program.Eval(ctx, ev, now)
		if err != nil {
			if s.handleEvaluationError(ctx, rule, ev, err) {
				continue
			}
			return false
		}

		if !ok {
			metrics.IncFilterRuleEvaluation(rule.Name, "rejected")
			return false
		}
		metrics.IncFilterRuleEvaluation(rule.Name, "passed")
	}
	return true
}

// handleEvaluationError applies the on_error fallback and reports whether to keep going.
func (s *Service) handleEvaluationError(ctx context.Context, rule Rule, ev models.CampaignEvent, err error) bool {
	metrics.IncFilterRuleEvaluation(rule.Name, "error")

	if s.onError == constants.FallbackAllow {
		metrics.FallbackUsageTotal.WithLabelValues("filtering", "allow_on_error", "evaluation_error").Inc()
		s.logger.WarnwCtx(ctx, "Evaluation error, allowing event (fallback: allow)",
			"rule_name", rule.Name,
			"adv_campaign_id", ev.AdvCampaignID,
			"error", err,
		)
		return true
	}

	metrics.FallbackUsageTotal.WithLabelValues("filtering", "deny_on_error", "evaluation_error").Inc()
	s.logger.WarnwCtx(ctx, "Evaluation error, denying event (fallback: deny)",
		"rule_name", rule.Name,
		"adv_campaign_id", ev.AdvCampaignID,
		"error", err,
	)
	return false
}

func (s *Service) RuleCount() int {
	return len(s.rules)
}
