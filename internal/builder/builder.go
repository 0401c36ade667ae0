package builder

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

// Bundle is the result of one build: a single script named after the base
// name of the target path.
type Bundle struct {
	Name     string
	Contents []byte

	// Nodes lists the bundled modules in emission order.
	Nodes []*Node

	// Warnings holds one entry per pair of modules that depend on each
	// other.
	Warnings []CycleWarning
}

// Order returns the paths of the bundled modules in emission order.
func (b *Bundle) Order() []string {
	paths := make([]string, len(b.Nodes))
	for i, n := range b.Nodes {
		paths[i] = n.Path
	}
	return paths
}

// Builder runs one bundle request. It is not safe for concurrent use; each
// request gets its own Builder, and builders share no state.
type Builder struct {
	files       []File
	sources     []*Source
	excluded    []string
	output      io.Writer
	target      string
	sourceDir   string
	namespaces  []string
	prefixes    []string
	overrideDir string
	global      string
	stat        func(string) (fs.FileInfo, error)
}

func New() *Builder {
	return &Builder{
		overrideDir: DefaultOverrideDir,
		global:      DefaultGlobal,
		stat:        os.Stat,
	}
}

func (b *Builder) WithFiles(files []File) *Builder {
	b.files = files
	return b
}

func (b *Builder) WithSources(srcs []*Source) *Builder {
	b.sources = srcs
	return b
}

func (b *Builder) WithExcluded(excluded []string) *Builder {
	b.excluded = excluded
	return b
}

func (b *Builder) WithOutput(w io.Writer) *Builder {
	b.output = w
	return b
}

func (b *Builder) WithTarget(target string) *Builder {
	b.target = target
	return b
}

func (b *Builder) WithSourceDir(dir string) *Builder {
	b.sourceDir = dir
	return b
}

func (b *Builder) WithNamespaces(namespaces []string) *Builder {
	b.namespaces = namespaces
	return b
}

func (b *Builder) WithAllowedPrefixes(prefixes []string) *Builder {
	b.prefixes = prefixes
	return b
}

func (b *Builder) WithOverrideDir(dir string) *Builder {
	b.overrideDir = dir
	return b
}

func (b *Builder) WithGlobal(global string) *Builder {
	b.global = global
	return b
}

func (b *Builder) WithStat(stat func(string) (fs.FileInfo, error)) *Builder {
	b.stat = stat
	return b
}

// Build scans every input, orders the modules and emits the bundle. Any
// parse or filesystem error aborts the build before anything is written to
// the output.
func (b *Builder) Build() (*Bundle, error) {
	files, err := b.inputs()
	if err != nil {
		return nil, err
	}

	sourceDir := b.sourceDir
	if sourceDir != "" {
		if sourceDir, err = filepath.Abs(sourceDir); err != nil {
			return nil, err
		}
	}

	scanner := NewScanner(sourceDir, b.prefixes).
		WithOverrideDir(b.overrideDir).
		WithStat(b.stat)

	g := NewGraph()
	for _, f := range files {
		deps, err := scanner.Scan(f.Path, f.Contents)
		if err != nil {
			return nil, err
		}
		g.Add(NewNode(f.Path, f.Contents, deps))
	}

	nodes, warnings := g.Expand().Sort()

	e := newEmitter(b.global, b.namespaces)
	e.preamble()
	for _, n := range nodes {
		e.module(n.Contents)
	}
	e.epilogue()

	result := &Bundle{
		Name:     filepath.Base(b.target),
		Contents: e.bytes(),
		Nodes:    nodes,
		Warnings: warnings,
	}

	if b.output != nil {
		if _, err := b.output.Write(result.Contents); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// inputs materializes the files of the request. Streams are rejected before
// anything is scanned and null files are skipped. Paths are made absolute;
// the first file seen for a path wins.
func (b *Builder) inputs() ([]File, error) {
	all := b.files
	for _, src := range b.sources {
		files, err := src.Files(b.excluded)
		if err != nil {
			return nil, err
		}
		all = append(all[:len(all):len(all)], files...)
	}

	seen := make(map[string]struct{}, len(all))
	files := make([]File, 0, len(all))
	for _, f := range all {
		if f.IsStream() {
			return nil, fmt.Errorf("%s: %w", f.Path, ErrStreamingNotSupported)
		}
		if f.IsNull() {
			continue
		}

		path, err := filepath.Abs(f.Path)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}

		files = append(files, File{Path: path, Contents: f.Contents})
	}

	return b.withoutOverridden(files, seen), nil
}

// withoutOverridden drops every module that has a copy of the same name in
// the override directory next to it. The copy is bundled in its place.
func (b *Builder) withoutOverridden(files []File, paths map[string]struct{}) []File {
	if b.overrideDir == "" {
		return files
	}

	return slices.DeleteFunc(files, func(f File) bool {
		dir, name := filepath.Split(f.Path)
		_, ok := paths[filepath.Join(dir, b.overrideDir, name)]
		return ok
	})
}
