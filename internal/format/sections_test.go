package format

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSectionsStructuredResponse(t *testing.T) {
	content := "**Problem Statement**\nKiln inlet temperature too high.\n\n" +
		"**Analysis**\nPossible causes include burner misalignment.\n\n" +
		"**Solution / Recommendation**\n1. Inspect burner.\n\n" +
		"**Best Practices / Safety Notes**\nAlways lock out before entry."

	sections := ParseSections(content)
	require.Len(t, sections, 4)

	assert.Equal(t, KindProblem, sections[0].Kind)
	assert.Equal(t, "Problem Statement", sections[0].Label)
	assert.Equal(t, "Kiln inlet temperature too high.", sections[0].Content)

	assert.Equal(t, KindAnalysis, sections[1].Kind)
	assert.Equal(t, KindSolution, sections[2].Kind)
	assert.Equal(t, KindSafety, sections[3].Kind)
	assert.Equal(t, "Always lock out before entry.", sections[3].Content)
}

func TestParseSectionsUnknownHeaderFallsBackToGeneral(t *testing.T) {
	sections := ParseSections("**Cost Estimate**\nAround 2M USD.")
	require.Len(t, sections, 1)
	assert.Equal(t, KindGeneral, sections[0].Kind)
	assert.Equal(t, "Cost Estimate", sections[0].Label)
	assert.Equal(t, "Around 2M USD.", sections[0].Content)
}

func TestParseSectionsUnstructuredContentIsLossless(t *testing.T) {
	content := "The clinker cooler should be inspected weekly.\nNo markers here."
	sections := ParseSections(content)
	require.Len(t, sections, 1)
	assert.Equal(t, KindGeneral, sections[0].Kind)
	assert.Empty(t, sections[0].Label)
	assert.Equal(t, content, sections[0].Content)
}

func TestParseSectionsKeepsLeadingText(t *testing.T) {
	content := "Here is my assessment.\n\n**Analysis**\nDetails follow."
	sections := ParseSections(content)
	require.Len(t, sections, 2)
	assert.Empty(t, sections[0].Label)
	assert.Equal(t, "Here is my assessment.", sections[0].Content)
	assert.Equal(t, KindAnalysis, sections[1].Kind)
}

func TestParseSectionsNothingDropped(t *testing.T) {
	content := "intro **Problem** p1 **Weird Label** w1 **Safety** s1"
	sections := ParseSections(content)
	require.Len(t, sections, 4)

	var joined strings.Builder
	for _, s := range sections {
		joined.WriteString(s.Label)
		joined.WriteString(s.Content)
	}
	for _, fragment := range []string{"intro", "p1", "w1", "s1", "Weird Label"} {
		assert.Contains(t, joined.String(), fragment)
	}
}

func TestClassifyRecommendationMapsToSolution(t *testing.T) {
	assert.Equal(t, KindSolution, classify("Recommendation"))
	assert.Equal(t, KindSafety, classify("Best Practices"))
	assert.Equal(t, KindGeneral, classify("Notes"))
}
