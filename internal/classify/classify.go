// Package classify provides the pluggable query safety classifier. The
// aggregation and reporting layers treat analysis generation as an external
// collaborator behind the Classifier interface (text in, Analysis out); a
// production deployment would back it with a hosted model API.
//
// The bundled Lexicon classifier is intentionally small and dependency-free,
// but engineered with production-grade ergonomics:
//
//   - No logging in the library (callers decide how/what to log)
//   - Unicode-aware tokenization with optional stop-word removal
//   - Immutable, read-only lexicons after construction (safe for concurrent use)
//   - Deterministic scoring and tie-breaks (same text always yields the
//     same Analysis — unlike the placeholder random scorer it replaces)
//
// Scoring counts token overlap between the query token set and each
// category's lexicon; the best-overlapping category wins, with ties broken
// by fixed category order.
package classify

import (
	"context"
	"regexp"
	"strings"

	"github.com/promptwatch/go-safety-backend/internal/domain"
)

// Classifier scores a query text into a structured Analysis.
//
// Implementations must be safe for concurrent use and must honor the
// provided context for cancellation.
type Classifier interface {
	Classify(ctx context.Context, text string) (domain.Analysis, error)
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	baseline  float64 // confidence floor for the no-match case
}

func defaultConfig() config {
	return config{
		stopwords: defaultStopwords(),
		baseline:  0.5,
	}
}

// WithStopwords replaces the default stop-word set.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		c.stopwords = m
	}
}

// WithBaselineConfidence sets the confidence reported when no category
// lexicon matches. Values outside (0,1] are ignored.
func WithBaselineConfidence(v float64) Option {
	return func(c *config) {
		if v > 0 && v <= 1 {
			c.baseline = v
		}
	}
}

// ----------------------------------------------------------------------------
// Lexicon classifier

// categoryClass couples a category with its intrinsic safety posture.
type categoryClass struct {
	name      string
	unsafe    bool
	riskLevel string
	severity  int
	tokens    map[string]struct{}
}

// Lexicon is a deterministic keyword-overlap classifier over the closed
// category and emotion sets. It is read-only after construction.
type Lexicon struct {
	cfg      config
	classes  []categoryClass
	emotions []emotionClass
}

type emotionClass struct {
	name   string
	emoji  string
	tokens map[string]struct{}
}

// NewLexicon constructs the bundled classifier with built-in keyword sets
// for every category and emotion in the domain model.
func NewLexicon(opts ...Option) *Lexicon {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Lexicon{
		cfg:      cfg,
		classes:  builtinClasses(),
		emotions: builtinEmotions(),
	}
}

// Classify tokenizes text and scores it against every category and emotion
// lexicon. The zero-match fallback is category "None", risk "low",
// safety "safe", severity 1, emotion "neutral".
func (l *Lexicon) Classify(ctx context.Context, text string) (domain.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return domain.Analysis{}, err
	}

	toks := tokenize(text, l.cfg.stopwords)

	best := -1
	bestOverlap := 0
	for i := range l.classes {
		if over := overlap(toks, l.classes[i].tokens); over > bestOverlap {
			best, bestOverlap = i, over
		}
	}

	a := domain.Analysis{
		Safety:     domain.SafetySafe,
		RiskLevel:  domain.RiskLow,
		Confidence: l.cfg.baseline,
		Category:   domain.CategoryNone,
		Severity:   1,
		Reason:     "no category lexicon matched",
		Emotion:    domain.Emotion{Type: domain.EmotionNeutral, Emoji: "😐"},
	}
	if len(toks) == 0 {
		a.Safety = domain.SafetyUnknown
		a.Reason = "query contains no scorable tokens"
		return a, nil
	}

	if best >= 0 {
		cl := l.classes[best]
		a.Category = cl.name
		a.RiskLevel = cl.riskLevel
		a.Severity = cl.severity
		a.Confidence = confidence(l.cfg.baseline, bestOverlap, len(toks))
		if cl.unsafe {
			a.Safety = domain.SafetyUnsafe
		}
		a.Reason = "matched " + cl.name + " lexicon"
	}

	bestEmo := -1
	bestEmoOverlap := 0
	for i := range l.emotions {
		if over := overlap(toks, l.emotions[i].tokens); over > bestEmoOverlap {
			bestEmo, bestEmoOverlap = i, over
		}
	}
	if bestEmo >= 0 {
		a.Emotion = domain.Emotion{Type: l.emotions[bestEmo].name, Emoji: l.emotions[bestEmo].emoji}
	}

	return a, nil
}

// confidence maps overlap strength to [baseline, 1): more matched tokens
// relative to query length yield higher confidence. Deterministic.
func confidence(baseline float64, over, qLen int) float64 {
	if qLen <= 0 || over <= 0 {
		return baseline
	}
	frac := float64(over) / float64(qLen)
	c := baseline + (1-baseline)*frac
	if c > 0.99 {
		c = 0.99
	}
	return c
}

// ----------------------------------------------------------------------------
// Tokenization helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	s = strings.ToLower(s)
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func tokenSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}

func defaultStopwords() map[string]struct{} {
	return tokenSet(
		"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
		"has", "have", "how", "i", "in", "is", "it", "my", "of", "on",
		"or", "that", "the", "this", "to", "was", "what", "when", "where",
		"which", "who", "will", "with", "you", "your",
	)
}

// builtinClasses defines one keyword set per category, ordered so that
// unsafe classes take precedence on equal overlap.
func builtinClasses() []categoryClass {
	return []categoryClass{
		{
			name: "Prompt Injection", unsafe: true, riskLevel: domain.RiskMedium, severity: 7,
			tokens: tokenSet("ignore", "previous", "instructions", "system", "prompt", "jailbreak", "override", "pretend", "roleplay", "developer", "mode", "bypass", "restrictions"),
		},
		{
			name: "Hate Speech", unsafe: true, riskLevel: domain.RiskHigh, severity: 9,
			tokens: tokenSet("hate", "racist", "slur", "bigot", "supremacy", "ethnic", "inferior", "subhuman", "genocide"),
		},
		{
			name: "Harassment", unsafe: true, riskLevel: domain.RiskHigh, severity: 8,
			tokens: tokenSet("harass", "stalk", "threaten", "dox", "doxx", "intimidate", "bully", "humiliate", "expose", "address"),
		},
		{
			name: "Sexually Explicit", unsafe: true, riskLevel: domain.RiskHigh, severity: 8,
			tokens: tokenSet("explicit", "nude", "porn", "sexual", "nsfw", "erotic"),
		},
		{
			name: "Dangerous & Illegal", unsafe: true, riskLevel: domain.RiskHigh, severity: 9,
			tokens: tokenSet("bomb", "weapon", "explosive", "poison", "hack", "malware", "ransomware", "steal", "launder", "drugs", "untraceable", "kill"),
		},
		{
			name: "Misinformation", unsafe: true, riskLevel: domain.RiskMedium, severity: 5,
			tokens: tokenSet("hoax", "conspiracy", "fake", "debunked", "propaganda", "vaccine", "microchip", "flat", "earth"),
		},
		{
			name: "Educational", riskLevel: domain.RiskLow, severity: 1,
			tokens: tokenSet("explain", "learn", "teach", "history", "science", "math", "definition", "example", "tutorial", "study", "homework"),
		},
		{
			name: "Creative", riskLevel: domain.RiskLow, severity: 1,
			tokens: tokenSet("story", "poem", "write", "fiction", "character", "song", "lyrics", "plot", "novel", "creative"),
		},
		{
			name: "Technical", riskLevel: domain.RiskLow, severity: 1,
			tokens: tokenSet("code", "function", "debug", "api", "server", "database", "compile", "golang", "python", "javascript", "error", "deploy"),
		},
		{
			name: "Business", riskLevel: domain.RiskLow, severity: 2,
			tokens: tokenSet("market", "revenue", "customer", "invoice", "sales", "strategy", "startup", "pricing", "forecast", "budget"),
		},
	}
}

func builtinEmotions() []emotionClass {
	return []emotionClass{
		{name: "happy", emoji: "😊", tokens: tokenSet("happy", "great", "love", "wonderful", "thanks", "awesome", "glad")},
		{name: "sad", emoji: "😢", tokens: tokenSet("sad", "depressed", "lonely", "cry", "miserable", "grief")},
		{name: "angry", emoji: "😠", tokens: tokenSet("angry", "furious", "hate", "rage", "annoyed", "mad")},
		{name: "confused", emoji: "😕", tokens: tokenSet("confused", "unsure", "unclear", "lost", "puzzled")},
		{name: "fearful", emoji: "😨", tokens: tokenSet("afraid", "scared", "fear", "terrified", "worried", "anxious")},
		{name: "excited", emoji: "🤩", tokens: tokenSet("excited", "thrilled", "amazing", "incredible", "hyped")},
		{name: "frustrated", emoji: "😤", tokens: tokenSet("frustrated", "stuck", "broken", "fails", "useless", "again")},
	}
}
