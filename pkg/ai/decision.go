package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const maxThreadChars = 12000

const extractionSystemPrompt = `You are an assistant that records business decisions from email and chat threads.
Read the thread and decide whether it states a decision someone has made.
Answer with a single JSON object and nothing else, using exactly these keys:
{
  "is_decision": boolean,
  "summary": "one sentence describing what was decided",
  "decision_maker": "email address of the person who made the decision",
  "witnesses": ["email addresses of other people present in the thread"],
  "topic": "short topic, at most six words",
  "decision_date": "YYYY-MM-DD",
  "priority": "critical | high | medium | low",
  "decision_type": "technical | budget | timeline | personnel | strategic | operational",
  "confidence": integer from 0 to 100,
  "key_points": ["supporting facts"],
  "parameters": {"name": "value"}
}
Use an empty string or empty list when a field is unknown. Never invent email addresses.`

const tagSystemPrompt = `You label recorded decisions for later filtering.
Return a JSON object {"tags": [...]} with one to five short lower-case tags.
Prefer tags from the existing list when they fit.`

// Extractor implements DecisionService over any Completer.
type Extractor struct {
	llm Completer
	now func() time.Time
}

func NewExtractor(llm Completer) *Extractor {
	return &Extractor{llm: llm, now: time.Now}
}

// ExtractDecision asks the model for a structured decision. A nil error with
// IsDecision false means the thread holds no decision.
func (e *Extractor) ExtractDecision(ctx context.Context, thread string) (*DecisionExtraction, error) {
	if e.llm == nil {
		return nil, ErrNoProvider
	}
	if len(thread) > maxThreadChars {
		thread = strings.ToValidUTF8(thread[:maxThreadChars], "")
	}

	prompt := fmt.Sprintf("Today is %s.\n\nTHREAD:\n%s", e.now().Format("2006-01-02"), thread)
	out, err := e.llm.Complete(ctx, extractionSystemPrompt, prompt, true)
	if err != nil {
		return nil, err
	}

	ext, err := ParseDecision(out)
	if err != nil {
		return nil, err
	}
	ext.Model = e.llm.Name()
	return ext, nil
}

// SuggestTags returns normalized tag names for a decision summary.
func (e *Extractor) SuggestTags(ctx context.Context, summary string, existing []string) ([]string, error) {
	if e.llm == nil {
		return nil, ErrNoProvider
	}

	prompt := fmt.Sprintf("Existing tags: %s\n\nDecision:\n%s", strings.Join(existing, ", "), summary)
	out, err := e.llm.Complete(ctx, tagSystemPrompt, prompt, true)
	if err != nil {
		return nil, err
	}
	return ParseTags(out)
}

type rawDecision struct {
	IsDecision    bool           `json:"is_decision"`
	Summary       string         `json:"summary"`
	DecisionMaker string         `json:"decision_maker"`
	Witnesses     []string       `json:"witnesses"`
	Topic         string         `json:"topic"`
	DecisionDate  string         `json:"decision_date"`
	Priority      string         `json:"priority"`
	DecisionType  string         `json:"decision_type"`
	Confidence    float64        `json:"confidence"`
	KeyPoints     []string       `json:"key_points"`
	Parameters    map[string]any `json:"parameters"`
}

// ParseDecision decodes model output, tolerating code fences and chatter
// around the JSON object. Fractional confidence below 1 is read as a 0..1 scale and rescaled.
func ParseDecision(out string) (*DecisionExtraction, error) {
	body := extractJSON(out, '{', '}')
	var raw rawDecision
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse decision JSON: %w", err)
	}

	confidence := raw.Confidence
	if confidence > 0 && confidence < 1 {
		confidence *= 100
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	params := make(map[string]string, len(raw.Parameters))
	for k, v := range raw.Parameters {
		switch val := v.(type) {
		case string:
			params[k] = val
		case nil:
		default:
			b, _ := json.Marshal(val)
			params[k] = string(b)
		}
	}

	witnesses := make([]string, 0, len(raw.Witnesses))
	for _, w := range raw.Witnesses {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			witnesses = append(witnesses, w)
		}
	}

	return &DecisionExtraction{
		IsDecision:    raw.IsDecision,
		Summary:       strings.TrimSpace(raw.Summary),
		DecisionMaker: strings.ToLower(strings.TrimSpace(raw.DecisionMaker)),
		Witnesses:     witnesses,
		Topic:         strings.TrimSpace(raw.Topic),
		DecisionDate:  strings.TrimSpace(raw.DecisionDate),
		Priority:      strings.ToLower(strings.TrimSpace(raw.Priority)),
		DecisionType:  strings.ToLower(strings.TrimSpace(raw.DecisionType)),
		Confidence:    int(confidence + 0.5),
		KeyPoints:     raw.KeyPoints,
		Parameters:    params,
	}, nil
}

// ParseTags accepts {"tags": [...]} or a bare array.
func ParseTags(out string) ([]string, error) {
	var tags []string
	trimmed := stripCodeFence(out)
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(extractJSON(trimmed, '[', ']')), &tags); err != nil {
			return nil, fmt.Errorf("failed to parse tags: %w", err)
		}
	} else {
		var wrapped struct {
			Tags []string `json:"tags"`
		}
		if err := json.Unmarshal([]byte(extractJSON(trimmed, '{', '}')), &wrapped); err != nil {
			return nil, fmt.Errorf("failed to parse tags: %w", err)
		}
		tags = wrapped.Tags
	}

	seen := make(map[string]bool, len(tags))
	result := make([]string, 0, len(tags))
	for _, t := range tags {
		t = NormalizeTag(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		result = append(result, t)
		if len(result) == 5 {
			break
		}
	}
	return result, nil
}

// NormalizeTag lower-cases and hyphenates a tag name.
func NormalizeTag(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.TrimPrefix(t, "#")
	return strings.Join(strings.Fields(t), "-")
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

func extractJSON(s string, openCh, closeCh byte) string {
	s = stripCodeFence(s)
	start := strings.IndexByte(s, openCh)
	end := strings.LastIndexByte(s, closeCh)
	if start != -1 && end > start {
		return s[start : end+1]
	}
	return s
}
