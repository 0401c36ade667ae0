package fs

import (
	"errors"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// filterFS hides files that do not match the inclusion patterns or that
// match an exclusion pattern. Directories are never hidden by inclusion
// patterns, only by exclusion patterns.
type filterFS struct {
	fsys     fs.FS
	included []pattern
	excluded []pattern
}

type pattern struct {
	glob.Glob
	base bool
}

// NewFilterFS returns a read-only view of fsys. A nil or empty included list
// includes every file. Patterns use '/' as the separator; a pattern without
// a separator is matched against the base name, any other pattern against
// the full slash separated path.
func NewFilterFS(fsys fs.FS, included, excluded []string) (fs.FS, error) {
	inc, err := compile(included)
	if err != nil {
		return nil, err
	}
	exc, err := compile(excluded)
	if err != nil {
		return nil, err
	}
	return &filterFS{fsys: fsys, included: inc, excluded: exc}, nil
}

func compile(patterns []string) ([]pattern, error) {
	gs := make([]pattern, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, &fs.PathError{Op: "compile", Path: p, Err: err}
		}
		gs = append(gs, pattern{Glob: g, base: !strings.Contains(p, "/")})
	}
	return gs, nil
}

// Match reports whether name, a slash separated path, matches one of the
// patterns.
func Match(patterns []string, name string) (bool, error) {
	gs, err := compile(patterns)
	if err != nil {
		return false, err
	}
	return matchAny(gs, name), nil
}

func matchAny(ps []pattern, name string) bool {
	return slices.ContainsFunc(ps, func(p pattern) bool {
		if p.base {
			return p.Match(path.Base(name))
		}
		return p.Match(name)
	})
}

func (f *filterFS) visible(name string, dir bool) bool {
	if name == "." {
		return true
	}
	for p := name; p != "."; p = path.Dir(p) {
		if matchAny(f.excluded, p) {
			return false
		}
	}
	return dir || len(f.included) == 0 || matchAny(f.included, name)
}

func (f *filterFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	file, err := f.fsys.Open(name)
	if err != nil {
		return nil, err
	}

	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	if !f.visible(name, fi.IsDir()) {
		file.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	if fi.IsDir() {
		return &filterDir{File: file, fs: f, name: name}, nil
	}
	return file, nil
}

func (f *filterFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	if !f.visible(name, true) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}

	entries, err := fs.ReadDir(f.fsys, name)
	if err != nil {
		return nil, err
	}
	return f.filter(name, entries), nil
}

func (f *filterFS) filter(dir string, entries []fs.DirEntry) []fs.DirEntry {
	return slices.DeleteFunc(entries, func(e fs.DirEntry) bool {
		return !f.visible(path.Join(dir, e.Name()), e.IsDir())
	})
}

// filterDir filters the entries of an opened directory.
type filterDir struct {
	fs.File
	fs   *filterFS
	name string
}

func (d *filterDir) ReadDir(n int) ([]fs.DirEntry, error) {
	rd, ok := d.File.(fs.ReadDirFile)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: d.name, Err: errors.ErrUnsupported}
	}

	if n <= 0 {
		entries, err := rd.ReadDir(n)
		return d.fs.filter(d.name, entries), err
	}

	// Keep reading until n visible entries are found or the directory is
	// exhausted.
	var out []fs.DirEntry
	for len(out) < n {
		entries, err := rd.ReadDir(n - len(out))
		out = append(out, d.fs.filter(d.name, entries)...)
		if err != nil {
			if len(out) > 0 && errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
	}
	return out, nil
}
