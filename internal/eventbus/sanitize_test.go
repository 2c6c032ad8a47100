package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeStringStripsBidiControls(t *testing.T) {
	dirty := "hello‮world⁦!"
	assert.Equal(t, "helloworld!", SanitizeString(dirty))
}

func TestSanitizeStringLeavesCleanStringsUntouched(t *testing.T) {
	clean := "hello world"
	assert.Equal(t, clean, SanitizeString(clean))
}

func TestSanitizeDataWalksNestedStructures(t *testing.T) {
	in := map[string]any{
		"title": "hello‮world",
		"tags":  []any{"a⁦b", "c"},
		"nested": map[string]any{
			"note": "x⁩y",
		},
		"count": 5,
	}
	out := SanitizeData(in).(map[string]any)

	assert.Equal(t, "helloworld", out["title"])
	assert.Equal(t, []any{"ab", "c"}, out["tags"])
	assert.Equal(t, "xy", out["nested"].(map[string]any)["note"])
	assert.Equal(t, 5, out["count"])
}
