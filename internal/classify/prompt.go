package classify

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscout/internal/model"
)

// Violation types the model may return. Anything else is dropped.
const (
	ViolationSpam                = "spam"
	ViolationFakeEngagement      = "fake_engagement"
	ViolationOffTopic            = "off_topic"
	ViolationDeceptiveContent    = "deceptive_content"
	ViolationHarassment          = "harassment"
	ViolationHateSpeech          = "hate_speech"
	ViolationOffensiveContent    = "offensive_content"
	ViolationSexuallyExplicit    = "sexually_explicit"
	ViolationDangerousContent    = "dangerous_content"
	ViolationConflictOfInterest  = "conflict_of_interest"
	ViolationImpersonation       = "impersonation"
	ViolationPersonalInformation = "personal_information"
)

// Taxonomy lists the accepted violation types in prompt order.
var Taxonomy = []string{
	ViolationSpam,
	ViolationFakeEngagement,
	ViolationOffTopic,
	ViolationDeceptiveContent,
	ViolationHarassment,
	ViolationHateSpeech,
	ViolationOffensiveContent,
	ViolationSexuallyExplicit,
	ViolationDangerousContent,
	ViolationConflictOfInterest,
	ViolationImpersonation,
	ViolationPersonalInformation,
}

var aliases = map[string]string{
	"fake_review":        ViolationFakeEngagement,
	"fake_content":       ViolationFakeEngagement,
	"spam_and_fake":      ViolationSpam,
	"irrelevant":         ViolationOffTopic,
	"misinformation":     ViolationDeceptiveContent,
	"bullying":           ViolationHarassment,
	"hate":               ViolationHateSpeech,
	"profanity":          ViolationOffensiveContent,
	"obscenity":          ViolationOffensiveContent,
	"sexual_content":     ViolationSexuallyExplicit,
	"illegal_content":    ViolationDangerousContent,
	"restricted_content": ViolationDangerousContent,
	"conflict":           ViolationConflictOfInterest,
	"personal_info":      ViolationPersonalInformation,
	"pii":                ViolationPersonalInformation,
}

// SystemPrompt describes the taxonomy and the reply contract.
var SystemPrompt = `You review public business reviews for content-policy violations on a map service.

Violation types:
- spam: repetitive, promotional or bot-like content
- fake_engagement: fabricated experience, paid or incentivized review, review bombing
- off_topic: content unrelated to an experience at this business
- deceptive_content: false factual claims presented as fact
- harassment: threats, bullying or personal attacks on staff or owners
- hate_speech: attacks on people based on protected characteristics
- offensive_content: profanity, obscenity or gratuitous insults
- sexually_explicit: sexual content
- dangerous_content: promotion of illegal or dangerous acts
- conflict_of_interest: written by an owner, employee, competitor or ex-employee
- impersonation: pretending to be someone else
- personal_information: phone numbers, addresses or private details of individuals

A negative but honest account of a real experience is NOT a violation.
Only flag clear violations. When unsure, set has_violation to false and lower the confidence.

Reply with a single JSON object and nothing else:
{"has_violation": true|false, "violation_types": ["<type>", ...], "confidence": <0.0-1.0>, "reasoning": "<one sentence>"}`

const userPromptTemplate = `Reviewer: %s
Rating: %d/5
Date: %s

Review:
%s`

// UserPrompt renders the per-review message.
func UserPrompt(r model.Review) string {
	return fmt.Sprintf(userPromptTemplate, r.ReviewerName, r.Rating, r.Date, strings.TrimSpace(r.Text))
}

// replyKeys must all be present in a reply.
var replyKeys = []string{"has_violation", "violation_types", "confidence", "reasoning"}

// Parse decodes a model reply. The reply must contain a JSON object with
// every key in replyKeys and a boolean has_violation. Confidence is clamped
// to [0,1] and unknown or malformed violation types are dropped.
func Parse(text string) (model.Classification, error) {
	raw := cleanJSON(text)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return model.Classification{}, eris.Wrap(err, "classify: parse reply")
	}

	for _, k := range replyKeys {
		if _, ok := fields[k]; !ok {
			return model.Classification{}, eris.Errorf("classify: reply missing %s", k)
		}
	}
	var hasViolation bool
	if err := json.Unmarshal(fields["has_violation"], &hasViolation); err != nil {
		return model.Classification{}, eris.Wrap(err, "classify: has_violation is not a boolean")
	}

	var reasoning string
	_ = json.Unmarshal(fields["reasoning"], &reasoning)

	return model.Classification{
		HasViolation:   hasViolation,
		ViolationTypes: parseTypes(fields["violation_types"]),
		Confidence:     parseConfidence(fields["confidence"]),
		Reasoning:      strings.TrimSpace(reasoning),
	}, nil
}

func parseTypes(raw json.RawMessage) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err != nil {
		return out
	}
	seen := make(map[string]bool)
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			continue
		}
		t := NormalizeType(s)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// NormalizeType maps a free-form type label onto the taxonomy, or "".
func NormalizeType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_", "/", "_").Replace(s)
	for _, t := range Taxonomy {
		if s == t {
			return t
		}
	}
	return aliases[s]
}

func parseConfidence(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
		v = parsed
	}
	return clamp(v)
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// cleanJSON extracts a JSON object from text that may contain markdown
// code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
