package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// patternStages are checked in priority order; the first match wins and
// short-circuits the model fallback. Booking keywords take precedence
// over pricing keywords over service keywords.
var patternStages = []struct {
	category IntentCategory
	re       *regexp.Regexp
}{
	{IntentBookingRequest, regexp.MustCompile(`\b(book|booking|schedule|appointment|sign\s*up|get\s+started|consultation|reserve)\b`)},
	{IntentPricingInquiry, regexp.MustCompile(`\b(price|prices|pricing|cost|costs|quote|fee|fees|package|packages|how\s+much)\b`)},
	{IntentServiceInquiry, regexp.MustCompile(`\b(social\s+media|graphic\s+design|branding|compliance|incorporation|registration|event\s+management|business\s+development|administrative\s+support|marketing|logo)\b`)},
}

// Classifier assigns exactly one intent category per request: a keyword
// pattern stage first, then a model-backed fallback constrained to the
// closed category set. The pattern stage only substitutes for the model
// when confident keyword evidence exists; it never overrides it.
type Classifier struct {
	gen            Generator
	patternEnabled bool
}

func NewClassifier(gen Generator, patternEnabled bool) *Classifier {
	return &Classifier{gen: gen, patternEnabled: patternEnabled}
}

type classifierOutput struct {
	Classification IntentCategory `json:"classification"`
	Confidence     float64        `json:"confidence,omitempty"`
	Entities       []string       `json:"entities,omitempty"`
}

// Classify returns the category for text. Turns produced by the
// fallback model call are appended to history before returning.
func (c *Classifier) Classify(ctx context.Context, text string, history *History) (IntentCategory, error) {
	if c.patternEnabled {
		if cat, ok := MatchPattern(text); ok {
			log.Debug().Str("category", string(cat)).Msg("classifier: pattern stage match")
			return cat, nil
		}
	}

	res, err := c.gen.Run(ctx, ClassificationPersona(), *history)
	if err != nil {
		return "", err
	}
	*history = append(*history, res.NewTurns...)

	var out classifierOutput
	if err := json.Unmarshal([]byte(res.Text), &out); err != nil {
		log.Warn().Err(err).Msg("classifier: unparseable fallback output")
		return "", fmt.Errorf("%w: %v", ErrClassificationFailed, err)
	}
	if !out.Classification.Valid() {
		return "", fmt.Errorf("%w: got %q", ErrClassificationFailed, out.Classification)
	}
	return out.Classification, nil
}

// MatchPattern runs only the keyword stage. The second return reports
// whether any stage matched.
func MatchPattern(text string) (IntentCategory, bool) {
	lower := strings.ToLower(text)
	for _, stage := range patternStages {
		if stage.re.MatchString(lower) {
			return stage.category, true
		}
	}
	return "", false
}
