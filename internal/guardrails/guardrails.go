// Package guardrails screens raw user input against a configured
// rule-set before it reaches classification or generation.
//
// Supported rules: jailbreak (model judge with confidence threshold),
// contains_pii (regex detection, optional mask-only mode), moderation,
// hallucination, nsfw, url_filter, custom_prompt_check and
// prompt_injection heuristics.
package guardrails

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/impact-solutions/chat-gateway/internal/chat"
)

type RuleName string

const (
	RuleJailbreak       RuleName = "jailbreak"
	RulePII             RuleName = "contains_pii"
	RuleModeration      RuleName = "moderation"
	RuleHallucination   RuleName = "hallucination"
	RuleNSFW            RuleName = "nsfw"
	RuleURLFilter       RuleName = "url_filter"
	RuleCustomPrompt    RuleName = "custom_prompt_check"
	RulePromptInjection RuleName = "prompt_injection"
)

// Rule is one configured guardrail. The rule-set is configuration, not
// hardcoded logic.
type Rule struct {
	Name RuleName
	// Block controls whether detection trips the screen. A PII rule
	// with Block=false runs in mask-only mode instead.
	Block bool
	// ConfidenceThreshold applies to model-judged rules.
	ConfidenceThreshold float64
	// CustomPrompt is the judge instruction for custom_prompt_check.
	CustomPrompt string
	// AllowedDomains whitelists hosts for url_filter.
	AllowedDomains []string
}

// Info is the per-rule structured detail attached to a verdict. Shapes
// vary by rule family; unused fields stay zero.
type Info struct {
	CheckedText            string
	AnonymizedText         string
	DetectedEntities       map[string][]string
	FlaggedCategories      []string
	Confidence             float64
	Reasoning              string
	HallucinationType      string
	HallucinatedStatements []string
	VerifiedStatements     []string
}

// Verdict is one rule's outcome. A verdict-set is tripped iff any
// member is tripped.
type Verdict struct {
	Rule    RuleName
	Tripped bool
	Info    Info
}

// Judge is the model capability guardrail rules evaluate with.
type Judge interface {
	Judge(ctx context.Context, system, input string) (string, error)
}

// Moderator classifies text against the moderation categories.
type Moderator interface {
	Moderate(ctx context.Context, text string) ([]string, error)
}

// Screen runs the configured rules and normalizes their verdicts. It
// implements chat.SafetyScreen.
type Screen struct {
	rules     []Rule
	judge     Judge
	moderator Moderator
}

func NewScreen(rules []Rule, judge Judge, moderator Moderator) *Screen {
	return &Screen{rules: rules, judge: judge, moderator: moderator}
}

// Screen checks text against every configured rule. When a mask-only
// PII rule is configured it additionally redacts detected entities from
// every history text part and the workflow fields, in place, regardless
// of the overall outcome.
func (s *Screen) Screen(ctx context.Context, text string, history chat.History, wf *chat.Workflow) (*chat.ScreenResult, error) {
	verdicts := make([]Verdict, 0, len(s.rules))
	for _, rule := range s.rules {
		verdicts = append(verdicts, s.check(ctx, rule, text))
	}

	if mask := s.maskOnlyPII(); mask != nil {
		scrubHistory(history)
		if wf != nil {
			wf.InputAsText = anonymizePII(wf.InputAsText)
			wf.InputText = anonymizePII(wf.InputText)
		}
	}

	tripped := false
	for _, v := range verdicts {
		if v.Tripped {
			tripped = true
			break
		}
	}

	res := &chat.ScreenResult{
		Tripped:  tripped,
		SafeText: resolveSafeText(verdicts, text),
	}
	if tripped {
		res.FailOutput = buildFailOutput(verdicts)
	}
	return res, nil
}

func (s *Screen) maskOnlyPII() *Rule {
	for i := range s.rules {
		if s.rules[i].Name == RulePII && !s.rules[i].Block {
			return &s.rules[i]
		}
	}
	return nil
}

// resolveSafeText prefers a rule's checked/filtered text, then a PII
// rule's anonymized text, then the original input.
func resolveSafeText(verdicts []Verdict, fallback string) string {
	for _, v := range verdicts {
		if v.Info.CheckedText != "" {
			return v.Info.CheckedText
		}
	}
	for _, v := range verdicts {
		if v.Info.AnonymizedText != "" {
			return v.Info.AnonymizedText
		}
	}
	return fallback
}

func scrubHistory(history chat.History) {
	for i := range history {
		for j := range history[i].Content {
			part := &history[i].Content[j]
			if part.Kind != chat.PartInputText {
				continue
			}
			part.Text = anonymizePII(part.Text)
		}
	}
}

// DefaultRules builds the rule-set the gateway ships with: jailbreak
// detection, plus moderation and mask-only PII when enabled.
func DefaultRules(jailbreakThreshold float64, moderation, maskPII bool) []Rule {
	rules := []Rule{{
		Name:                RuleJailbreak,
		Block:               true,
		ConfidenceThreshold: jailbreakThreshold,
	}}
	if moderation {
		rules = append(rules, Rule{Name: RuleModeration, Block: true})
	}
	if maskPII {
		rules = append(rules, Rule{Name: RulePII, Block: false})
	}
	return rules
}

// --- Failure payload normalization ---

// The fail output is the externally visible error body: per rule
// family, a failed flag plus any supporting detail. Callers never see
// raw engine internals.

type piiFailure struct {
	Failed         bool     `json:"failed"`
	DetectedCounts []string `json:"detected_counts"`
}

type moderationFailure struct {
	Failed            bool     `json:"failed"`
	FlaggedCategories []string `json:"flagged_categories,omitempty"`
}

type flagFailure struct {
	Failed bool `json:"failed"`
}

type hallucinationFailure struct {
	Failed                 bool     `json:"failed"`
	Reasoning              string   `json:"reasoning,omitempty"`
	HallucinationType      string   `json:"hallucination_type,omitempty"`
	HallucinatedStatements []string `json:"hallucinated_statements,omitempty"`
	VerifiedStatements     []string `json:"verified_statements,omitempty"`
}

// FailOutput is the normalized per-rule-family failure payload.
type FailOutput struct {
	PII               piiFailure           `json:"pii"`
	Moderation        moderationFailure    `json:"moderation"`
	Jailbreak         flagFailure          `json:"jailbreak"`
	Hallucination     hallucinationFailure `json:"hallucination"`
	NSFW              flagFailure          `json:"nsfw"`
	URLFilter         flagFailure          `json:"url_filter"`
	CustomPromptCheck flagFailure          `json:"custom_prompt_check"`
	PromptInjection   flagFailure          `json:"prompt_injection"`
}

func buildFailOutput(verdicts []Verdict) *FailOutput {
	out := &FailOutput{PII: piiFailure{DetectedCounts: []string{}}}
	for _, v := range verdicts {
		switch v.Rule {
		case RulePII:
			counts := make([]string, 0, len(v.Info.DetectedEntities))
			for entity, hits := range v.Info.DetectedEntities {
				counts = append(counts, entity+":"+strconv.Itoa(len(hits)))
			}
			out.PII = piiFailure{
				Failed:         len(counts) > 0 || v.Tripped,
				DetectedCounts: counts,
			}
		case RuleModeration:
			out.Moderation = moderationFailure{
				Failed:            v.Tripped || len(v.Info.FlaggedCategories) > 0,
				FlaggedCategories: v.Info.FlaggedCategories,
			}
		case RuleJailbreak:
			out.Jailbreak = flagFailure{Failed: v.Tripped}
		case RuleHallucination:
			out.Hallucination = hallucinationFailure{
				Failed:                 v.Tripped,
				Reasoning:              v.Info.Reasoning,
				HallucinationType:      v.Info.HallucinationType,
				HallucinatedStatements: v.Info.HallucinatedStatements,
				VerifiedStatements:     v.Info.VerifiedStatements,
			}
		case RuleNSFW:
			out.NSFW = flagFailure{Failed: v.Tripped}
		case RuleURLFilter:
			out.URLFilter = flagFailure{Failed: v.Tripped}
		case RuleCustomPrompt:
			out.CustomPromptCheck = flagFailure{Failed: v.Tripped}
		case RulePromptInjection:
			out.PromptInjection = flagFailure{Failed: v.Tripped}
		default:
			log.Warn().Str("rule", string(v.Rule)).Msg("guardrails: verdict for unknown rule")
		}
	}
	return out
}
