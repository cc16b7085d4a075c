package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DannyJanmaat/VSPilot-sub000/internal/ai"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMessagesRoundTrip(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveMessage("user", "build my project", ai.ProviderOpenAI))
	require.NoError(t, s.SaveMessage("assistant", "building now", ai.ProviderOpenAI))
	require.NoError(t, s.SaveMessage("user", "explain the failure", ai.ProviderAnthropic))

	recs, err := s.RecentMessages(10)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	// Oldest first.
	assert.Equal(t, "build my project", recs[0].Content)
	assert.Equal(t, "openai", recs[0].Provider)
	assert.Equal(t, "explain the failure", recs[2].Content)
	assert.Equal(t, "anthropic", recs[2].Provider)
}

func TestRecentMessagesLimit(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 8; i++ {
		require.NoError(t, s.SaveMessage("user", "m", ai.ProviderCopilot))
	}
	recs, err := s.RecentMessages(3)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestAnalysesAndBuilds(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveAnalysis("backend", "looks structurally sound"))
	analyses, err := s.RecentAnalyses(5)
	require.NoError(t, err)
	require.Len(t, analyses, 1)
	assert.Equal(t, "backend", analyses[0].Subject)

	require.NoError(t, s.SaveBuild(BuildRecord{Succeeded: false, FailedUnits: 2, ErrorMessage: "2 units failed", DurationMS: 1500}))
	require.NoError(t, s.SaveBuild(BuildRecord{Succeeded: true, SucceededUnits: 3, DurationMS: 900}))

	builds, err := s.RecentBuilds(5)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	// Newest first.
	assert.True(t, builds[0].Succeeded)
	assert.Equal(t, 2, builds[1].FailedUnits)
}
