package env

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalBinDirs are tool directories, relative to a process working directory,
// that are prepended to PATH when they exist. Earlier entries win.
var LocalBinDirs = []string{filepath.Join("node_modules", ".bin"), "bin"}

type Var map[string]string

type Env struct {
	Var Var // session-wide overrides (K->V)
	env Var // cached base from OS environment
}

func New() *Env {
	return &Env{Var: make(Var)}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	e.env = parse(os.Environ())
}

// Set sets a session-wide variable K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// WithSet returns a copy of e with K=V applied.
func (e *Env) WithSet(k, v string) *Env {
	cp := &Env{Var: make(Var, len(e.Var)+1), env: e.env}
	for kk, vv := range e.Var {
		cp.Var[kk] = vv
	}
	cp.Var[k] = v
	return cp
}

// Merge composes the environment for a child running in dir:
// OS base, then session overrides, then perProc "K=V" entries, with ${VAR}
// expansion against the composed map. Local tool-bin directories found under
// dir are prepended to PATH. The result is sorted by key.
func (e *Env) Merge(dir string, perProc []string) []string {
	if e.env == nil {
		e.FromOS()
	}
	m := make(Var, len(e.env)+len(e.Var)+len(perProc))
	for k, v := range e.env {
		m[k] = v
	}
	for k, v := range e.Var {
		if k == "" {
			continue
		}
		m[k] = v
	}
	for k, v := range parse(perProc) {
		m[k] = v
	}
	expanded := make(Var, len(m))
	for k, v := range m {
		expanded[k] = expand(v, m)
	}
	if dir != "" {
		expanded["PATH"] = PrependLocalBin(dir, expanded["PATH"])
	}

	keys := make([]string, 0, len(expanded))
	for k := range expanded {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+expanded[k])
	}
	return out
}

// PrependLocalBin returns path with every existing LocalBinDirs entry under dir
// placed in front of it. Directories already present are not repeated.
func PrependLocalBin(dir, path string) string {
	var front []string
	for _, rel := range LocalBinDirs {
		p := filepath.Join(dir, rel)
		if st, err := os.Stat(p); err != nil || !st.IsDir() {
			continue
		}
		if containsEntry(path, p) {
			continue
		}
		front = append(front, p)
	}
	if len(front) == 0 {
		return path
	}
	if path == "" {
		return strings.Join(front, string(os.PathListSeparator))
	}
	return strings.Join(front, string(os.PathListSeparator)) + string(os.PathListSeparator) + path
}

func containsEntry(path, dir string) bool {
	for _, p := range filepath.SplitList(path) {
		if p == dir {
			return true
		}
	}
	return false
}

func parse(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	res := s
	// simple ${VAR} expansion; no recursion
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
