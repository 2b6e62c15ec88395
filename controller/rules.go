package controller

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/models"
)

// Rule kinds as stored on algorithms.
const (
	RuleDwell      = "dwell"
	RuleCongestion = "congestion"
	RulePosture    = "posture"
	RuleJudge      = "judge"
)

// RuleConfig holds the tunables of every rule kind.
type RuleConfig struct {
	Dwell      DwellConfig      `yaml:"parking"`
	Congestion CongestionConfig `yaml:"congestion"`
	Posture    PostureConfig    `yaml:"posture"`
	Fallback   models.Fallback  `yaml:"judge_fallback"`
}

// DefaultRuleConfig returns the defaults of every rule kind.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		Dwell:      DefaultDwellConfig(),
		Congestion: DefaultCongestionConfig(),
		Posture:    DefaultPostureConfig(),
		Fallback:   models.FallbackAnyLabel,
	}
}

// NewRule builds the rule of the given kind. Each call returns fresh rule state.
//
// Arguments:
//   - kind: One of RuleDwell, RuleCongestion, RulePosture, RuleJudge.
//   - model: The model identifier, used by judge rules.
//   - detectorKind: The detector variant serving the rule.
//   - cfg: Rule tunables.
//
// Returns:
//   - Rule: The rule.
//   - error: An error for unknown kinds or a keypoint rule on a non-keypoint detector.
func NewRule(kind, model string, detectorKind detector.Kind, cfg RuleConfig) (Rule, error) {
	switch kind {
	case RuleDwell:
		return NewDwellRule(cfg.Dwell), nil
	case RuleCongestion:
		return NewCongestionRule(cfg.Congestion), nil
	case RulePosture:
		if detectorKind != detector.KindKeypoint {
			return nil, errors.Errorf("posture rule needs a keypoint detector, got %q", detectorKind)
		}
		return NewPostureRule(cfg.Posture), nil
	case RuleJudge, "":
		return NewJudgeRule(model, detectorKind, cfg.Fallback), nil
	default:
		return nil, errors.Errorf("unknown rule %q", kind)
	}
}
