package guardrail

import (
	"fmt"
	"sort"
	"strings"
)

// Moderation modes.
const (
	ModeStrict   = "strict"
	ModeBalanced = "balanced"
	ModeOff      = "off"
)

// ModerationRule is one blocklist entry.
type ModerationRule struct {
	Term        string
	Category    string
	Description string
}

// ModerationReason describes why content was blocked.
type ModerationReason struct {
	Category    string `json:"category"`
	Trigger     string `json:"trigger"`
	Description string `json:"description"`
}

// String renders the compact category:trigger tag used in response meta.
func (r *ModerationReason) String() string {
	return r.Category + ":" + r.Trigger
}

var balancedRules = []ModerationRule{
	{"hate speech", "hate_speech", "Detected hateful or discriminatory content."},
	{"racist", "hate_speech", "Detected hateful or discriminatory content."},
	{"nazi", "hate_speech", "Detected hateful or discriminatory content."},
	{"heil hitler", "hate_speech", "Detected hateful or discriminatory content."},
	{"national socialism", "hate_speech", "Detected hateful or discriminatory content."},
	{"nacional-socialismo", "hate_speech", "Detected hateful or discriminatory content."},
	{"death to minorities", "hate_speech", "Detected hateful or discriminatory content."},
	{"kill minorities", "hate_speech", "Detected hateful or discriminatory content."},
	{"exterminate minorities", "hate_speech", "Detected hateful or discriminatory content."},
	{"morte as minorias", "hate_speech", "Detected hateful or discriminatory content."},
	{"white power", "hate_speech", "Detected hateful or discriminatory content."},
	{"sexual content", "erotic_content", "Detected explicit sexual content."},
	{"explicit sexual", "erotic_content", "Detected explicit sexual content."},
	{"destroy the government", "violence", "Detected threats against governmental institutions or public safety."},
	{"kill your", "violence", "Detected threats to kill or seriously harm another person."},
	{"kill everyone", "violence", "Detected threats to kill or seriously harm multiple people."},
	{"kill everybody", "violence", "Detected threats to kill or seriously harm multiple people."},
	{"kill them", "violence", "Detected threats to kill or seriously harm another person."},
	{"kill you", "violence", "Detected threats to kill or seriously harm another person."},
	{"matar voce", "violence", "Detected threats to kill or seriously harm another person."},
	{"matar todos", "violence", "Detected threats to kill or seriously harm multiple people."},
	{"matar todo mundo", "violence", "Detected threats to kill or seriously harm multiple people."},
	{"burn down", "violence", "Detected threats involving arson or fire."},
	{"set on fire", "violence", "Detected threats involving arson or fire."},
	{"queimar", "violence", "Detected threats involving arson or fire."},
	{"fuck you", "abusive_language", "Detected abusive or harassing language."},
	{"fuck off", "abusive_language", "Detected abusive or harassing language."},
	{"asshole", "abusive_language", "Detected abusive or harassing language."},
	{"motherfucker", "abusive_language", "Detected abusive or harassing language."},
	{"vai se foder", "abusive_language", "Detected abusive or harassing language."},
	{"foda-se", "abusive_language", "Detected abusive or harassing language."},
	{"filho da puta", "abusive_language", "Detected abusive or harassing language."},
	{"malware", "system_abuse", "Detected a request for malicious tooling."},
	{"password", "system_access", "Detected a request for protected credentials."},
	{"senha do sistema", "system_access", "Detected a request for protected credentials."},
}

var strictExtraRules = []ModerationRule{
	{"explosive", "violence", "Detected instructions related to explosive materials."},
	{"illegal drugs", "illicit_activities", "Detected references to illegal drug creation or trade."},
}

var categoryPriority = map[string]int{
	"hate_speech":        0,
	"erotic_content":     1,
	"violence":           2,
	"abusive_language":   3,
	"system_abuse":       4,
	"system_access":      4,
	"illicit_activities": 4,
	"custom":             5,
}

// Moderator classifies generated text against a term blocklist. On a hit the
// content is replaced with a fixed safe message; this is a policy outcome,
// not an error.
type Moderator struct {
	enabled bool
	mode    string
	rules   []ModerationRule
}

// NewModerator builds the rule set for the given mode plus configured custom
// terms (semicolon-separated).
func NewModerator(enabled bool, mode, customTerms string) *Moderator {
	rules := make([]ModerationRule, 0, len(balancedRules)+len(strictExtraRules)+4)
	rules = append(rules, balancedRules...)
	if mode == ModeStrict {
		rules = append(rules, strictExtraRules...)
	}
	for _, raw := range strings.Split(customTerms, ";") {
		term := strings.ToLower(strings.TrimSpace(raw))
		if term == "" {
			continue
		}
		rules = append(rules, ModerationRule{
			Term:        term,
			Category:    "custom",
			Description: fmt.Sprintf("Detected blocked term %q.", term),
		})
	}
	unique := make([]ModerationRule, 0, len(rules))
	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		key := strings.ToLower(rule.Term)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		rule.Term = key
		unique = append(unique, rule)
	}
	// Priority category first, longer terms before their substrings, then
	// lexical for a fully deterministic match order.
	sort.SliceStable(unique, func(i, j int) bool {
		pi, pj := rulePriority(unique[i]), rulePriority(unique[j])
		if pi != pj {
			return pi < pj
		}
		if len(unique[i].Term) != len(unique[j].Term) {
			return len(unique[i].Term) > len(unique[j].Term)
		}
		return unique[i].Term < unique[j].Term
	})
	return &Moderator{enabled: enabled, mode: mode, rules: unique}
}

func rulePriority(rule ModerationRule) int {
	if priority, ok := categoryPriority[rule.Category]; ok {
		return priority
	}
	return 99
}

// Moderate returns the (possibly replaced) content, whether it was blocked
// and the matched reason.
func (m *Moderator) Moderate(text string) (string, bool, *ModerationReason) {
	if !m.enabled || m.mode == ModeOff {
		return text, false, nil
	}
	lowered := strings.ToLower(text)
	for _, rule := range m.rules {
		if rule.Term != "" && strings.Contains(lowered, rule.Term) {
			reason := &ModerationReason{
				Category:    rule.Category,
				Trigger:     rule.Term,
				Description: rule.Description,
			}
			return safeMessage(rule), true, reason
		}
	}
	return text, false, nil
}

func safeMessage(rule ModerationRule) string {
	category := strings.ReplaceAll(rule.Category, "_", " ")
	return fmt.Sprintf(
		"I cannot comply with that request because it violates our policy on %s. %s",
		category, rule.Description,
	)
}
