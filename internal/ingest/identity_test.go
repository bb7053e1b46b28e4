package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveIdentity_AdvtNoNormalization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		advtNo string
		want   string
	}{
		{"clean", "19/SPSC/EXAM/2025", "19_SPSC_EXAM_2025"},
		{"spaced and lowercased", "19 / spsc / exam / 2025", "19_SPSC_EXAM_2025"},
		{"hyphens", "19-SPSC-EXAM-2025", "19_SPSC_EXAM_2025"},
		{"stray punctuation", "No. 19/SPSC/EXAM/2025!", "NO19_SPSC_EXAM_2025"},
		{"tabs and newlines", "19\t/SPSC/\nEXAM/2025", "19_SPSC_EXAM_2025"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ResolveIdentity(tt.advtNo, "Some Post", "01/01/2025")
			require.Equal(t, tt.want, got)
		})
	}
}

func TestResolveIdentity_Deterministic(t *testing.T) {
	t.Parallel()

	first := ResolveIdentity("12/SPSC/2025", "Officer", "10/03/2025")
	for i := 0; i < 10; i++ {
		require.Equal(t, first, ResolveIdentity("12/SPSC/2025", "Officer", "10/03/2025"))
	}
}

func TestResolveIdentity_EquivalentInputsConverge(t *testing.T) {
	t.Parallel()

	// The same advertisement scraped twice with different noise must land
	// on the same document key, regardless of the other fields.
	a := ResolveIdentity("19/SPSC/EXAM/2025", "Assistant Engineer", "01/06/2025")
	b := ResolveIdentity("19 / spsc / exam / 2025", "Asst. Engineer (Civil)", "02/06/2025")
	require.Equal(t, a, b)
}

func TestResolveIdentity_Fallback(t *testing.T) {
	t.Parallel()

	t.Run("date and post name", func(t *testing.T) {
		t.Parallel()
		got := ResolveIdentity("", "Junior Engineer", "11/12/2025")
		require.Equal(t, "SPSC_20251211_JUNIOR_ENGINEER", got)
	})

	t.Run("unparsable date keeps digits", func(t *testing.T) {
		t.Parallel()
		got := ResolveIdentity("", "Clerk", "December 2025")
		require.Equal(t, "SPSC_2025_CLERK", got)
	})

	t.Run("missing date", func(t *testing.T) {
		t.Parallel()
		got := ResolveIdentity("", "Clerk", "")
		require.Equal(t, "SPSC_NODATE_CLERK", got)
	})

	t.Run("missing everything", func(t *testing.T) {
		t.Parallel()
		got := ResolveIdentity("", "", "")
		require.Equal(t, "SPSC_NODATE_UNTITLED", got)
	})

	t.Run("long post name truncated", func(t *testing.T) {
		t.Parallel()
		got := ResolveIdentity("", "Deputy Director of Agriculture Marketing and Cooperation Department", "11/12/2025")
		require.LessOrEqual(t, len(got), len("SPSC_20251211_")+maxSlugLen)
		require.Equal(t, "SPSC_20251211_DEPUTY_DIRECTOR_OF_AGRICULTURE", got)
	})
}

func TestResolveIdentity_NoDoublePrefix(t *testing.T) {
	t.Parallel()

	// Feeding a synthesized identity back through as an advt number must not
	// stack another prefix on top.
	first := ResolveIdentity("", "Junior Engineer", "11/12/2025")
	second := ResolveIdentity(first, "Junior Engineer", "11/12/2025")
	require.Equal(t, first, second)
}
