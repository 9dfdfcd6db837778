// Package persona turns raw persona submissions into anonymised documents,
// stores them in the content store and derives the fingerprint the identity
// registry binds.
package persona

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	coreid "vitrine/core/identity"
	"vitrine/core/types"
	"vitrine/crypto"
	"vitrine/services/contentstore"
)

const documentVersion = "1.0"

var (
	// ErrInvalidSubmission is returned for payloads that do not decode into a
	// persona submission or carry no usable signal.
	ErrInvalidSubmission = errors.New("persona: invalid submission")
)

// Processor is the persona processing collaborator.
type Processor interface {
	Process(ctx context.Context, raw []byte) (coreid.Hash, types.ContentID, error)
}

// Demographics is the self-declared demographic block of a submission.
type Demographics struct {
	AgeRange string `json:"age_range"`
	Location string `json:"location"`
	Language string `json:"language"`
}

// Browsing summarises browsing habits.
type Browsing struct {
	Categories []string           `json:"categories"`
	TimeSpent  map[string]float64 `json:"time_spent,omitempty"`
	Devices    []string           `json:"devices,omitempty"`
}

// Preferences captures advertising and shopping preferences.
type Preferences struct {
	AdTypes        []string `json:"ad_types,omitempty"`
	ContentFormats []string `json:"content_formats,omitempty"`
	ShoppingHabits []string `json:"shopping_habits,omitempty"`
}

// Submission is the raw persona payload accepted from users.
type Submission struct {
	Interests    []string     `json:"interests"`
	Demographics Demographics `json:"demographics"`
	Browsing     Browsing     `json:"browsing"`
	Preferences  Preferences  `json:"preferences"`
}

// Document is the anonymised persona stored off-core. Field order and sorted
// slices keep its JSON encoding canonical.
type Document struct {
	ID               string             `json:"id"`
	AgeSegment       string             `json:"age_segment"`
	LanguageGroup    string             `json:"language_group"`
	MarketTier       string             `json:"market_tier"`
	InterestScores   map[string]int     `json:"interest_scores"`
	PrimaryInterest  string             `json:"primary_interest"`
	BrowseCategories []string           `json:"browse_categories"`
	BrowseShare      map[string]float64 `json:"browse_share,omitempty"`
	Devices          []string           `json:"devices,omitempty"`
	Preferences      []string           `json:"preferences,omitempty"`
	PrivacyLevel     string             `json:"privacy_level"`
	ProcessingMethod string             `json:"processing_method"`
	CreatedAt        string             `json:"created_at"`
	Version          string             `json:"version"`
}

var interestKeywords = map[string][]string{
	"technology":    {"tech", "technology", "software", "hardware", "ai", "blockchain", "programming"},
	"sports":        {"sports", "football", "basketball", "fitness", "running", "gym"},
	"entertainment": {"music", "cinema", "games", "gaming", "streaming", "art"},
	"fashion":       {"fashion", "clothes", "beauty", "style"},
	"food":          {"food", "cooking", "recipes", "restaurants", "gastronomy"},
	"travel":        {"travel", "tourism", "hotels", "adventure"},
	"health":        {"health", "wellness", "nutrition", "medicine"},
	"finance":       {"finance", "investing", "economy", "crypto"},
	"education":     {"education", "courses", "learning", "books"},
	"lifestyle":     {"lifestyle", "home", "decor", "family"},
}

var ageSegments = map[string]string{
	"18-24": "gen_z",
	"25-34": "millennial_young",
	"35-44": "millennial_old",
	"45-54": "gen_x",
	"55-64": "boomer_young",
	"65+":   "boomer_old",
}

var languageGroups = map[string]string{
	"português":  "portuguese",
	"portuguese": "portuguese",
	"english":    "english",
	"español":    "spanish",
	"spanish":    "spanish",
	"français":   "french",
	"french":     "french",
}

var metroAreas = []string{"são paulo", "rio de janeiro", "new york", "london", "tokyo", "berlin", "paris"}

// DocumentProcessor is the default Processor backed by a content store.
type DocumentProcessor struct {
	store contentstore.Store
	now   func() time.Time
	newID func() string
}

// NewDocumentProcessor constructs a processor writing to store.
func NewDocumentProcessor(store contentstore.Store) *DocumentProcessor {
	return &DocumentProcessor{store: store, now: time.Now, newID: uuid.NewString}
}

// SetNowFunc overrides the document timestamp source.
func (p *DocumentProcessor) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	p.now = now
}

// SetIDFunc overrides the document id generator.
func (p *DocumentProcessor) SetIDFunc(fn func() string) {
	if fn == nil {
		fn = uuid.NewString
	}
	p.newID = fn
}

// Process decodes raw, builds the anonymised document, stores it and returns
// the Keccak-256 fingerprint of the stored bytes together with the content id.
func (p *DocumentProcessor) Process(ctx context.Context, raw []byte) (coreid.Hash, types.ContentID, error) {
	var submission Submission
	if err := json.Unmarshal(raw, &submission); err != nil {
		return coreid.Hash{}, "", fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}
	doc, err := p.Build(submission)
	if err != nil {
		return coreid.Hash{}, "", err
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return coreid.Hash{}, "", err
	}
	id, err := p.store.Store(ctx, encoded)
	if err != nil {
		return coreid.Hash{}, "", fmt.Errorf("persona: store document: %w", err)
	}
	return coreid.Hash(crypto.Keccak256(encoded)), id, nil
}

// Build anonymises a submission without storing it.
func (p *DocumentProcessor) Build(s Submission) (*Document, error) {
	interests := normalizeList(s.Interests)
	categories := normalizeList(s.Browsing.Categories)
	if len(interests) == 0 && len(categories) == 0 {
		return nil, fmt.Errorf("%w: interests or browsing categories required", ErrInvalidSubmission)
	}
	scores, primary := scoreInterests(interests)
	doc := &Document{
		ID:               p.newID(),
		AgeSegment:       lookup(ageSegments, s.Demographics.AgeRange),
		LanguageGroup:    lookup(languageGroups, s.Demographics.Language),
		MarketTier:       marketTier(s.Demographics.Location),
		InterestScores:   scores,
		PrimaryInterest:  primary,
		BrowseCategories: categories,
		BrowseShare:      browseShare(s.Browsing.TimeSpent),
		Devices:          normalizeList(s.Browsing.Devices),
		Preferences:      mergePreferences(s.Preferences),
		PrivacyLevel:     "high",
		ProcessingMethod: "rule_based",
		CreatedAt:        p.now().UTC().Format(time.RFC3339),
		Version:          documentVersion,
	}
	return doc, nil
}

func normalize(value string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(value)))
}

func normalizeList(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		n := normalize(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func lookup(table map[string]string, key string) string {
	if v, ok := table[normalize(key)]; ok {
		return v
	}
	return "unknown"
}

func marketTier(location string) string {
	loc := normalize(location)
	if loc == "" {
		return "unknown"
	}
	for _, metro := range metroAreas {
		if strings.Contains(loc, metro) {
			return "tier_1_metro"
		}
	}
	return "tier_3_other"
}

func scoreInterests(interests []string) (map[string]int, string) {
	scores := make(map[string]int)
	for category, keywords := range interestKeywords {
		score := 0
		for _, interest := range interests {
			for _, kw := range keywords {
				switch {
				case interest == kw:
					score += 2
				case strings.Contains(interest, kw):
					score++
				}
			}
		}
		if score > 0 {
			scores[category] = score
		}
	}
	primary := "general"
	best := 0
	for category, score := range scores {
		if score > best || (score == best && category < primary) {
			primary, best = category, score
		}
	}
	return scores, primary
}

func browseShare(timeSpent map[string]float64) map[string]float64 {
	total := 0.0
	for _, v := range timeSpent {
		if v > 0 {
			total += v
		}
	}
	if total == 0 {
		return nil
	}
	out := make(map[string]float64, len(timeSpent))
	for k, v := range timeSpent {
		if v <= 0 {
			continue
		}
		// Truncated to four decimal places.
		out[normalize(k)] = float64(int(v/total*10000)) / 10000
	}
	return out
}

func mergePreferences(p Preferences) []string {
	merged := make([]string, 0, len(p.AdTypes)+len(p.ContentFormats)+len(p.ShoppingHabits))
	for _, v := range normalizeList(p.AdTypes) {
		merged = append(merged, "ad:"+v)
	}
	for _, v := range normalizeList(p.ContentFormats) {
		merged = append(merged, "format:"+v)
	}
	for _, v := range normalizeList(p.ShoppingHabits) {
		merged = append(merged, "shopping:"+v)
	}
	return merged
}
