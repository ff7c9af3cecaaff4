package api

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

func TestParamsString(t *testing.T) {
	p := Params{"s": "hello", "n": float64(5), "f": 2.5, "b": true, "arr": []interface{}{}}

	v, ok, err := p.String("s")
	require.Nil(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", v)

	v, _, err = p.String("n")
	require.Nil(t, err)
	assert.Equal(t, "5", v)

	v, _, err = p.String("f")
	require.Nil(t, err)
	assert.Equal(t, "2.5", v)

	v, _, err = p.String("b")
	require.Nil(t, err)
	assert.Equal(t, "true", v)

	_, ok, err = p.String("missing")
	require.Nil(t, err)
	assert.False(t, ok)

	_, _, err = p.String("arr")
	require.NotNil(t, err)
	assert.Equal(t, models.ErrCodeValidation, err.Code)
}

func TestParamsRequiredString(t *testing.T) {
	p := Params{"title": "Fix parser", "blank": "   "}

	v, err := p.RequiredString("title")
	require.Nil(t, err)
	assert.Equal(t, "Fix parser", v)

	_, err = p.RequiredString("blank")
	require.NotNil(t, err)
	assert.Equal(t, models.ErrCodeMissingField, err.Code)

	_, err = p.RequiredString("absent")
	require.NotNil(t, err)
	assert.Equal(t, models.ErrCodeMissingField, err.Code)
}

func TestParamsInt(t *testing.T) {
	p := Params{"n": float64(7), "s": " 42 ", "frac": 1.5, "bad": "seven"}

	n, ok, err := p.Int("n")
	require.Nil(t, err)
	require.True(t, ok)
	assert.Equal(t, 7, n)

	n, _, err = p.Int("s")
	require.Nil(t, err)
	assert.Equal(t, 42, n)

	_, _, err = p.Int("frac")
	assert.NotNil(t, err)

	_, _, err = p.Int("bad")
	assert.NotNil(t, err)

	_, ok, err = p.Int("missing")
	require.Nil(t, err)
	assert.False(t, ok)
}

func TestParamsBool(t *testing.T) {
	truthy := []interface{}{true, "true", "TRUE", "yes", "on", "1", float64(1)}
	falsy := []interface{}{false, "false", "no", "off", "0", float64(0)}

	for _, raw := range truthy {
		v, ok, err := Params{"flag": raw}.Bool("flag")
		require.Nil(t, err, "input %v", raw)
		require.True(t, ok)
		assert.True(t, v, "input %v", raw)
	}
	for _, raw := range falsy {
		v, ok, err := Params{"flag": raw}.Bool("flag")
		require.Nil(t, err, "input %v", raw)
		require.True(t, ok)
		assert.False(t, v, "input %v", raw)
	}

	_, _, err := Params{"flag": "maybe"}.Bool("flag")
	require.NotNil(t, err)
	assert.Equal(t, models.ErrCodeValidation, err.Code)

	v, err2 := Params{}.BoolDefault("flag", true)
	require.Nil(t, err2)
	assert.True(t, v)
}

func TestParamsStringSlice(t *testing.T) {
	t.Run("json array", func(t *testing.T) {
		out, ok, err := Params{"a": []interface{}{"x", "y"}}.StringSlice("a")
		require.Nil(t, err)
		require.True(t, ok)
		assert.Equal(t, []string{"x", "y"}, out)
	})

	t.Run("bare scalar becomes one-element list", func(t *testing.T) {
		out, _, err := Params{"a": "solo"}.StringSlice("a")
		require.Nil(t, err)
		assert.Equal(t, []string{"solo"}, out)

		out, _, err = Params{"a": float64(3)}.StringSlice("a")
		require.Nil(t, err)
		assert.Equal(t, []string{"3"}, out)
	})

	t.Run("comma-separated string splits", func(t *testing.T) {
		out, _, err := Params{"a": "x, y ,z,"}.StringSlice("a")
		require.Nil(t, err)
		assert.Equal(t, []string{"x", "y", "z"}, out)
	})

	t.Run("nested values rejected", func(t *testing.T) {
		_, _, err := Params{"a": []interface{}{map[string]interface{}{}}}.StringSlice("a")
		assert.NotNil(t, err)
	})
}

func TestParamsObject(t *testing.T) {
	t.Run("plain object", func(t *testing.T) {
		out, ok, err := Params{"data": map[string]interface{}{"k": "v"}}.Object("data")
		require.Nil(t, err)
		require.True(t, ok)
		assert.Equal(t, "v", out["k"])
	})

	t.Run("json string unwrapped", func(t *testing.T) {
		out, ok, err := Params{"data": `{"k": 1}`}.Object("data")
		require.Nil(t, err)
		require.True(t, ok)
		assert.Equal(t, float64(1), out["k"])
	})

	t.Run("malformed json string", func(t *testing.T) {
		_, _, err := Params{"data": "{not json"}.Object("data")
		require.NotNil(t, err)
		assert.Equal(t, models.ErrCodeValidation, err.Code)
	})

	t.Run("explicit null is present but nil", func(t *testing.T) {
		out, ok, err := Params{"data": nil}.Object("data")
		require.Nil(t, err)
		assert.True(t, ok)
		assert.Nil(t, out)
	})
}

func TestParamsUUID(t *testing.T) {
	want := uuid.New()
	p := Params{
		"canonical": want.String(),
		"compact":   strings.ReplaceAll(want.String(), "-", ""),
		"garbage":   "not-an-id",
	}

	id, ok, err := p.UUID("canonical")
	require.Nil(t, err)
	require.True(t, ok)
	assert.Equal(t, want, id)

	id, _, err = p.UUID("compact")
	require.Nil(t, err)
	assert.Equal(t, want, id)

	_, _, err = p.UUID("garbage")
	require.NotNil(t, err)
	assert.Equal(t, models.ErrCodeInvalidFormat, err.Code)

	_, err = Params{}.RequiredUUID("id")
	require.NotNil(t, err)
	assert.Equal(t, models.ErrCodeMissingField, err.Code)
}

func TestParamsEnum(t *testing.T) {
	v, ok, err := Params{"status": "In_Progress"}.Enum("status", "todo", "in_progress", "done")
	require.Nil(t, err)
	require.True(t, ok)
	assert.Equal(t, "in_progress", v)

	_, _, err = Params{"status": "paused"}.Enum("status", "todo", "done")
	require.NotNil(t, err)
	assert.Equal(t, models.ErrCodeValidation, err.Code)
}

func TestParamsRejectUnknown(t *testing.T) {
	p := Params{"action": "create", "bogus": 1, "extra": true}

	err := p.RejectUnknown("action", "bogus", "extra")
	assert.Nil(t, err)

	err = p.RejectUnknown("action")
	require.NotNil(t, err)
	assert.Equal(t, models.ErrCodeValidation, err.Code)
	assert.Equal(t, []string{"bogus", "extra"}, err.Details["unknown"])
	assert.Contains(t, err.Details["allowed"], "action")
}
