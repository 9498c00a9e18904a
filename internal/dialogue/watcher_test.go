package dialogue

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customRules = `rules:
  - class: catastrophizing
    pattern: '(?i)\bdoomed\b'
    replace: 'challenged'
`

func TestRulesWatcher_HotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(customRules), 0o644))

	r, err := NewReframer(nil)
	require.NoError(t, err)
	w, err := NewRulesWatcher(path, r, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, "we are challenged", r.Reframe("we are doomed").Text)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	updated := customRules + `  - class: absolutist
    pattern: '(?i)\bforever\b'
    replace: 'for a while'
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case <-w.Reloaded():
	case <-time.After(5 * time.Second):
		t.Fatal("rules not reloaded")
	}
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, "stuck for a while", r.Reframe("stuck forever").Text)
}

func TestRulesWatcher_InvalidInitialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules: ["), 0o644))

	r, err := NewReframer(nil)
	require.NoError(t, err)
	_, err = NewRulesWatcher(path, r, nil)
	assert.Error(t, err)
}
