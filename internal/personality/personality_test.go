package personality

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, Default().Validate())

	w := Default()
	w.Thinking = 1.1
	assert.Error(t, w.Validate())

	w = Default()
	w.Feeling = math.NaN()
	assert.Error(t, w.Validate())
}

func TestDominant_ByLane(t *testing.T) {
	w := Default()
	assert.Equal(t, Extroversion, w.Dominant(MixFor(Reactive)))
	assert.Equal(t, Introversion, w.Dominant(MixFor(Deliberate)))

	w.Thinking = 0.9
	assert.Equal(t, Thinking, w.Dominant(MixFor(Deliberate)))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "personality.yaml")
	require.NoError(t, os.WriteFile(path, []byte("feeling: 0.9\nclosure: 0.2\n"), 0o644))

	w, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.9, w.Feeling)
	assert.Equal(t, 0.2, w.Closure)
	assert.Equal(t, 0.5, w.Thinking)

	require.NoError(t, os.WriteFile(path, []byte("feeling: 3\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}
