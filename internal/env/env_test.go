package env

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(kvs []string, key string) (string, bool) {
	for _, kv := range kvs {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

func TestMergeOverridesAndExpansion(t *testing.T) {
	e := New()
	e.env = Var{"HOME": "/home/u", "PATH": "/usr/bin"}
	e.Set("APP", "${HOME}/app")

	out := e.Merge("", []string{"MODE=dev", "APP_LOG=${HOME}/log", "=bad"})

	v, ok := lookup(out, "APP")
	require.True(t, ok)
	assert.Equal(t, "/home/u/app", v)
	v, _ = lookup(out, "APP_LOG")
	assert.Equal(t, "/home/u/log", v)
	v, _ = lookup(out, "PATH")
	assert.Equal(t, "/usr/bin", v)
	for _, kv := range out {
		assert.False(t, strings.HasPrefix(kv, "="), "empty key leaked: %q", kv)
	}
}

func TestMergePrependsLocalBin(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", ".bin"), 0o755))

	e := New()
	e.env = Var{"PATH": "/usr/bin"}
	out := e.Merge(dir, nil)

	v, ok := lookup(out, "PATH")
	require.True(t, ok)
	want := filepath.Join(dir, "node_modules", ".bin") + string(os.PathListSeparator) + "/usr/bin"
	assert.Equal(t, want, v)
}

func TestPrependLocalBinWithoutDirsIsUnchanged(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "/usr/bin", PrependLocalBin(dir, "/usr/bin"))
}

func TestPrependLocalBinDoesNotRepeat(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))

	path := PrependLocalBin(dir, "/usr/bin")
	assert.Equal(t, PrependLocalBin(dir, path), path)
	assert.True(t, strings.HasPrefix(path, bin))
}

// FuzzExpandMerge fuzzes Merge/expand with random inputs to ensure no panics and
// that every output item is a KEY=VALUE pair.
func FuzzExpandMerge(f *testing.F) {
	f.Add([]byte("A=1\nB=${A}-x"), []byte("C=${B}-y"))
	f.Add([]byte("FOO=bar"), []byte("FOO=${FOO}"))

	f.Fuzz(func(t *testing.T, globalB []byte, perB []byte) {
		global := splitNZ(string(globalB))
		per := splitNZ(string(perB))
		if len(global) > 20 {
			global = global[:20]
		}
		if len(per) > 20 {
			per = per[:20]
		}
		e := New()
		for _, kv := range global {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				e = e.WithSet(kv[:i], kv[i+1:])
			}
		}
		for _, kv := range e.Merge("", per) {
			if !strings.Contains(kv, "=") || strings.HasPrefix(kv, "=") {
				t.Fatalf("bad pair: %q", kv)
			}
		}
	})
}

func splitNZ(s string) []string {
	var out []string
	for _, ln := range strings.Split(s, "\n") {
		ln = strings.TrimSpace(ln)
		if ln != "" {
			out = append(out, ln)
		}
	}
	return out
}
