package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

func TestDeepMerge(t *testing.T) {
	t.Run("objects merge key by key", func(t *testing.T) {
		base := map[string]interface{}{
			"settings": map[string]interface{}{"theme": "dark", "lang": "en"},
			"owner":    "alice",
		}
		overlay := map[string]interface{}{
			"settings": map[string]interface{}{"lang": "fr"},
		}
		out := deepMerge(base, overlay)
		settings := out["settings"].(map[string]interface{})
		assert.Equal(t, "dark", settings["theme"])
		assert.Equal(t, "fr", settings["lang"])
		assert.Equal(t, "alice", out["owner"])
	})

	t.Run("arrays are replaced wholesale", func(t *testing.T) {
		base := map[string]interface{}{"tags": []interface{}{"a", "b", "c"}}
		overlay := map[string]interface{}{"tags": []interface{}{"z"}}
		out := deepMerge(base, overlay)
		assert.Equal(t, []interface{}{"z"}, out["tags"])
	})

	t.Run("null removes the key", func(t *testing.T) {
		base := map[string]interface{}{"keep": 1, "drop": 2}
		overlay := map[string]interface{}{"drop": nil}
		out := deepMerge(base, overlay)
		assert.Equal(t, 1, out["keep"])
		_, present := out["drop"]
		assert.False(t, present)
	})

	t.Run("scalar replaces object and vice versa", func(t *testing.T) {
		base := map[string]interface{}{"v": map[string]interface{}{"a": 1}}
		overlay := map[string]interface{}{"v": "plain"}
		assert.Equal(t, "plain", deepMerge(base, overlay)["v"])

		out := deepMerge(overlay, base)
		assert.Equal(t, map[string]interface{}{"a": 1}, out["v"])
	})

	t.Run("inputs are not mutated", func(t *testing.T) {
		base := map[string]interface{}{"nested": map[string]interface{}{"x": 1}}
		overlay := map[string]interface{}{"nested": map[string]interface{}{"y": 2}}
		_ = deepMerge(base, overlay)
		assert.NotContains(t, base["nested"], "y")
		assert.NotContains(t, overlay["nested"], "x")
	})
}

func TestMergeLayerProvenance(t *testing.T) {
	acc := models.JSONMap{}
	provenance := map[string]models.ContextLevel{}

	acc = mergeLayer(acc, provenance, &models.Context{
		Level: models.ContextLevelGlobal,
		Data:  models.JSONMap{"org": "acme", "style": "tabs"},
	})
	acc = mergeLayer(acc, provenance, &models.Context{
		Level: models.ContextLevelProject,
		Data:  models.JSONMap{"style": "spaces"},
	})
	acc = mergeLayer(acc, provenance, &models.Context{
		Level: models.ContextLevelTask,
		Data:  models.JSONMap{"org": nil, "focus": "parser"},
	})

	assert.Equal(t, "spaces", acc["style"])
	assert.Equal(t, "parser", acc["focus"])
	_, present := acc["org"]
	require.False(t, present)

	assert.Equal(t, models.ContextLevelProject, provenance["style"])
	assert.Equal(t, models.ContextLevelTask, provenance["focus"])
	_, tracked := provenance["org"]
	assert.False(t, tracked)
}
