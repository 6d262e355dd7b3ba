package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAcceptsAllRoles(t *testing.T) {
	for _, name := range []string{
		"Operations",
		"Project Management",
		"Sales & Marketing",
		"Procurement",
		"Erection & Commissioning",
		"Engineering & Design",
		"General AI",
	} {
		role, err := Parse(name)
		require.NoError(t, err, name)
		assert.Equal(t, Role(name), role)
	}
}

func TestParseRejectsUnknownRole(t *testing.T) {
	_, err := Parse("Finance")
	assert.Error(t, err)

	// 大小写敏感：角色是封闭枚举，不做模糊匹配
	_, err = Parse("operations")
	assert.Error(t, err)
}

func TestBuildIsDeterministic(t *testing.T) {
	a := Build(RoleProcurement, "compare vertical roller mills")
	b := Build(RoleProcurement, "compare vertical roller mills")
	assert.Equal(t, a, b)
}

func TestBuildIncludesFormatContractAndRole(t *testing.T) {
	p := Build(RoleEngineering, "kiln shell design")

	assert.Equal(t, "kiln shell design", p.UserText)
	assert.Contains(t, p.SystemInstruction, "**Problem Statement**")
	assert.Contains(t, p.SystemInstruction, "**Analysis**")
	assert.Contains(t, p.SystemInstruction, "**Solution / Recommendation**")
	assert.Contains(t, p.SystemInstruction, "**Best Practices / Safety Notes**")
	assert.Contains(t, p.SystemInstruction, "Current user department: Engineering & Design")
}

func TestBuildAppendsFocusBlockExactlyOnce(t *testing.T) {
	for role, block := range focusBlocks {
		p := Build(role, "q")
		assert.Equal(t, 1, strings.Count(p.SystemInstruction, block), "role %s", role)
	}
}

func TestBuildDoesNotMixFocusBlocks(t *testing.T) {
	p := Build(RoleSalesMarketing, "q")
	assert.NotContains(t, p.SystemInstruction, "For Procurement Department")
	assert.NotContains(t, p.SystemInstruction, "For Engineering & Design")
}

func TestBuildGeneralAIBypassesDomainFraming(t *testing.T) {
	p := Build(RoleGeneralAI, "what is the capital of France")

	assert.Equal(t, generalInstruction, p.SystemInstruction)
	assert.NotContains(t, p.SystemInstruction, "Cement Plant Expert")
	assert.NotContains(t, p.SystemInstruction, "**Problem Statement**")
}

func TestIsGeneral(t *testing.T) {
	assert.True(t, RoleGeneralAI.IsGeneral())
	assert.False(t, RoleOperations.IsGeneral())
}
