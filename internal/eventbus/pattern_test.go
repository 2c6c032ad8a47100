package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompilePatternExactMatch(t *testing.T) {
	re, err := compilePattern("form.submitted")
	require.NoError(t, err)
	assert.True(t, re.MatchString("form.submitted"))
	assert.False(t, re.MatchString("form.submitted.extra"))
	assert.False(t, re.MatchString("form.approved"))
}

func TestCompilePatternWildcard(t *testing.T) {
	re, err := compilePattern("*")
	require.NoError(t, err)
	assert.True(t, re.MatchString("anything"))
	assert.True(t, re.MatchString(""))
}

func TestCompilePatternPrefixGlob(t *testing.T) {
	re, err := compilePattern("form.*")
	require.NoError(t, err)
	assert.True(t, re.MatchString("form.submitted"))
	assert.True(t, re.MatchString("form.approved"))
	assert.False(t, re.MatchString("user.created"))
}

func TestCompilePatternEscapesLiteralMetacharacters(t *testing.T) {
	re, err := compilePattern("form.submitted")
	require.NoError(t, err)
	// the literal "." must not behave as a regexp wildcard
	assert.False(t, re.MatchString("formXsubmitted"))
}

func TestCompilePatternLeadingWildcard(t *testing.T) {
	re, err := compilePattern("*.synced")
	require.NoError(t, err)
	assert.True(t, re.MatchString("integration.synced"))
	assert.False(t, re.MatchString("integration.failed"))
}
