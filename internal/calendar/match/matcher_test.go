package match

import (
	"testing"
	"time"

	"github.com/coachcal/coachcal/internal/trainees"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractName(t *testing.T) {
	testCases := []struct {
		summary  string
		expected string
		ok       bool
	}{
		{"אימון - דנה כהן", "דנה כהן", true},
		{"אימון – דנה", "דנה", true},
		{"פגישה: יוסי", "יוסי", true},
		{"דנה כהן - אימון", "דנה כהן", true},
		{"אימון עם דנה", "דנה", true},
		{"טיפול ל רוני", "רוני", true},
		{"דנה כהן", "דנה כהן", true},
		{"  דנה כהן  ", "דנה כהן", true},
		{"אימון", "", false},
		{"הפסקה", "", false},
		{"פנוי", "", false},
		{"תפוס", "", false},
		{"", "", false},
		{"   ", "", false},
		{"א", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.summary, func(t *testing.T) {
			name, ok := ExtractName(tc.summary)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.expected, name)
		})
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "דנה כהן", NormalizeName("  דנה   כהן "))
	assert.Equal(t, "דנה", NormalizeName("אימון - דנה"))
	assert.Equal(t, "dana cohen", NormalizeName("Dana  Cohen"))
}

func TestSimilarity_Exact(t *testing.T) {
	for _, name := range []string{"דנה כהן", "Dana Cohen", "אימון - דנה"} {
		assert.Equal(t, 100, Similarity(name, name))
	}
	// normalization applies before comparison
	assert.Equal(t, 100, Similarity("אימון - דנה כהן", "דנה  כהן"))
}

func TestSimilarity_Containment(t *testing.T) {
	// round(85 * shorter/longer + 10), in runes
	assert.Equal(t, 46, Similarity("דנה", "דנה כהן"))
	assert.Equal(t, 46, Similarity("דנה כהן", "דנה"))
	assert.Equal(t, 74, Similarity("abc", "abcd"))
}

func TestSimilarity_MatchingParts(t *testing.T) {
	// one of two tokens match: round(70 + 30 * 1/2) = 85
	assert.Equal(t, 85, Similarity("דנה לוי", "דנה כהן"))
	assert.Equal(t, 85, Similarity("דנה כהן", "דנה לוי"))
}

func TestSimilarity_Levenshtein(t *testing.T) {
	// distance 1 of maxLen 3: round((1 - 1/3) * 100) = 67
	assert.Equal(t, 67, Similarity("abc", "abd"))
	// the levenshtein branch is commutative
	assert.Equal(t, Similarity("abc", "abd"), Similarity("abd", "abc"))
	assert.Equal(t, Similarity("רון", "רן"), Similarity("רן", "רון"))
	// completely different names floor at 0, never negative
	assert.GreaterOrEqual(t, Similarity("אב", "xyzwvu"), 0)
}

func testRoster() []trainees.Trainee {
	return []trainees.Trainee{
		{ID: 1, TrainerID: 1, FullName: "דנה כהן", CountingMethod: trainees.MonthlyCount, IsActive: true},
		{ID: 2, TrainerID: 1, FullName: "יוסי לוי", CountingMethod: trainees.MonthlySubscription, IsActive: true},
		{ID: 3, TrainerID: 1, FullName: "רוני ומיכל", IsPair: true, PairName1: "רוני שגב", PairName2: "מיכל ברק", CountingMethod: trainees.CardTicket, IsActive: true},
	}
}

func TestFindBestMatches(t *testing.T) {
	m := NewMatcher()
	roster := testRoster()

	t.Run("exact match", func(t *testing.T) {
		matches := m.FindBestMatches("דנה כהן", roster)
		require.NotEmpty(t, matches)
		assert.Equal(t, 1, matches[0].Trainee.ID)
		assert.Equal(t, 100, matches[0].Score)
		assert.Equal(t, TypeExact, matches[0].Type)
	})

	t.Run("first name only boosts to close", func(t *testing.T) {
		matches := m.FindBestMatches("דנה", roster)
		require.NotEmpty(t, matches)
		assert.Equal(t, 1, matches[0].Trainee.ID)
		assert.Equal(t, 90, matches[0].Score)
		assert.Equal(t, TypeClose, matches[0].Type)
	})

	t.Run("pair sub-name matches", func(t *testing.T) {
		matches := m.FindBestMatches("מיכל ברק", roster)
		require.NotEmpty(t, matches)
		assert.Equal(t, 3, matches[0].Trainee.ID)
		assert.Equal(t, 100, matches[0].Score)
		assert.Equal(t, TypeExact, matches[0].Type)
	})

	t.Run("no candidates below min score", func(t *testing.T) {
		matches := m.FindBestMatches("george w", roster)
		assert.Empty(t, matches)
	})

	t.Run("equal scores order alphabetically", func(t *testing.T) {
		roster := []trainees.Trainee{
			{ID: 10, FullName: "דנה לוי", IsActive: true},
			{ID: 11, FullName: "דנה ברק", IsActive: true},
		}
		matches := m.FindBestMatches("דנה", roster)
		require.Len(t, matches, 2)
		assert.Equal(t, matches[0].Score, matches[1].Score)
		assert.Equal(t, "דנה ברק", matches[0].Trainee.FullName)
		assert.Equal(t, "דנה לוי", matches[1].Trainee.FullName)
	})
}

func TestMatchEvents(t *testing.T) {
	m := NewMatcher()
	roster := testRoster()
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	events := []EventInfo{
		{ID: "ev-1", Summary: "אימון - דנה כהן", Start: start, End: start.Add(time.Hour)},
		{ID: "ev-2", Summary: "אימון", Start: start, End: start.Add(time.Hour)},
		{ID: "ev-3", Summary: "אימון - ג'ורג' וושינגטון", Start: start, End: start.Add(time.Hour)},
		{ID: "ev-4", Summary: "אימון - דנה", Start: start, End: start.Add(time.Hour)},
	}

	results := m.MatchEvents(events, roster)
	require.Len(t, results, 4)

	// exactly one exact match: auto-linked
	assert.Equal(t, StatusMatched, results[0].Status)
	assert.Equal(t, 1, results[0].SelectedTraineeID)
	assert.Equal(t, "דנה כהן", results[0].ExtractedName)

	// generic title, nothing to extract
	assert.Equal(t, StatusUnmatched, results[1].Status)
	assert.Empty(t, results[1].ExtractedName)

	// extractable name but nobody fits: offer creating a trainee
	assert.Equal(t, StatusNew, results[2].Status)
	assert.Equal(t, "ג'ורג' וושינגטון", results[2].ExtractedName)

	// close (sub-100) match needs confirmation
	assert.Equal(t, StatusPending, results[3].Status)
	assert.NotEmpty(t, results[3].Matches)
	assert.Zero(t, results[3].SelectedTraineeID)
}
