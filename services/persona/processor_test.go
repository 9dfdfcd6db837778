package persona

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	coreid "vitrine/core/identity"
	"vitrine/crypto"
	"vitrine/services/contentstore"
)

func newProcessor(t *testing.T) (*DocumentProcessor, *contentstore.BoltStore) {
	t.Helper()
	store, err := contentstore.OpenBolt(filepath.Join(t.TempDir(), "personas.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	p := NewDocumentProcessor(store)
	p.SetNowFunc(func() time.Time { return time.Unix(1_700_000_000, 0) })
	p.SetIDFunc(func() string { return "00000000-0000-4000-8000-000000000001" })
	return p, store
}

const sample = `{
	"interests": ["Blockchain", "running", " blockchain "],
	"demographics": {"age_range": "25-34", "location": "Rio de Janeiro, BR", "language": "Português"},
	"browsing": {"categories": ["news", "Tech"], "time_spent": {"news": 1, "tech": 3}},
	"preferences": {"ad_types": ["video"], "shopping_habits": ["online"]}
}`

func TestProcessStoresDocumentAndHashesIt(t *testing.T) {
	p, store := newProcessor(t)
	ctx := context.Background()

	hash, id, err := p.Process(ctx, []byte(sample))
	require.NoError(t, err)
	require.False(t, hash.IsZero())
	require.False(t, id.IsZero())

	stored, err := store.Fetch(ctx, id)
	require.NoError(t, err)
	require.Equal(t, coreid.Hash(crypto.Keccak256(stored)), hash)

	var doc Document
	require.NoError(t, json.Unmarshal(stored, &doc))
	require.Equal(t, "millennial_young", doc.AgeSegment)
	require.Equal(t, "portuguese", doc.LanguageGroup)
	require.Equal(t, "tier_1_metro", doc.MarketTier)
	require.Equal(t, "technology", doc.PrimaryInterest)
	require.Equal(t, []string{"news", "tech"}, doc.BrowseCategories)
	require.Equal(t, 0.75, doc.BrowseShare["tech"])
	require.Equal(t, []string{"ad:video", "shopping:online"}, doc.Preferences)
	require.Equal(t, "2023-11-14T22:13:20Z", doc.CreatedAt)
}

func TestProcessIsDeterministicForEquivalentInput(t *testing.T) {
	p, _ := newProcessor(t)
	ctx := context.Background()

	first, _, err := p.Process(ctx, []byte(`{"interests":["Cafe\u0301"],"demographics":{},"browsing":{"categories":[]},"preferences":{}}`))
	require.NoError(t, err)
	second, _, err := p.Process(ctx, []byte(`{"interests":["café"],"demographics":{},"browsing":{"categories":[]},"preferences":{}}`))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestProcessRejectsInvalidSubmissions(t *testing.T) {
	p, _ := newProcessor(t)
	ctx := context.Background()

	_, _, err := p.Process(ctx, []byte("not json"))
	require.True(t, errors.Is(err, ErrInvalidSubmission))

	_, _, err = p.Process(ctx, []byte(`{"interests":[" "],"browsing":{"categories":[]}}`))
	require.True(t, errors.Is(err, ErrInvalidSubmission))
}
