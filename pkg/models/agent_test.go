package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAgentName(t *testing.T) {
	cases := map[string]string{
		"@coding-agent": "coding-agent",
		"Coding_Agent":  "coding-agent",
		"@Debug Agent":  "debug-agent",
		"reviewer":      "reviewer",
	}
	for raw, want := range cases {
		got, err := NormalizeAgentName(raw)
		require.Nil(t, err, "input %q", raw)
		assert.Equal(t, want, got)
	}

	for _, raw := range []string{"", "@", "--bad--", "spaced out  badly!"} {
		_, err := NormalizeAgentName(raw)
		assert.NotNil(t, err, "input %q should be rejected", raw)
	}
}

func TestDeriveAgentID(t *testing.T) {
	projectA := uuid.New()
	projectB := uuid.New()

	// Deterministic within a project, distinct across projects
	assert.Equal(t, DeriveAgentID(projectA, "coding-agent"), DeriveAgentID(projectA, "coding-agent"))
	assert.NotEqual(t, DeriveAgentID(projectA, "coding-agent"), DeriveAgentID(projectB, "coding-agent"))
	assert.NotEqual(t, DeriveAgentID(projectA, "coding-agent"), DeriveAgentID(projectA, "debug-agent"))
}

func TestResolveAgentIdentifier(t *testing.T) {
	project := uuid.New()

	direct := uuid.New()
	id, err := ResolveAgentIdentifier(project, direct.String())
	require.Nil(t, err)
	assert.Equal(t, direct, id)

	byName, err := ResolveAgentIdentifier(project, "@coding-agent")
	require.Nil(t, err)
	assert.Equal(t, DeriveAgentID(project, "coding-agent"), byName)

	_, err = ResolveAgentIdentifier(project, "!!")
	assert.NotNil(t, err)
}
