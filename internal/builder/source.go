package builder

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	jsfs "github.com/jsbundle/jsbundle/internal/fs"
)

// SourceSuffix is appended to every required module name before it is
// matched against the allowed prefixes and resolved on disk.
const SourceSuffix = ".js"

// File is one input of a bundle request.
type File struct {
	Path     string
	Contents []byte

	// Stream is set for inputs that are not materialized in memory. Such
	// inputs are rejected with ErrStreamingNotSupported.
	Stream io.Reader
}

// IsNull reports whether the file carries neither contents nor a stream.
// Null files are skipped.
func (f File) IsNull() bool {
	return f.Contents == nil && f.Stream == nil
}

// IsStream reports whether the file is a streaming input.
func (f File) IsStream() bool {
	return f.Stream != nil
}

// Dir is a directory on the local filesystem that contributes input files.
type Dir struct {
	Path          string   // local fs path to module files
	IncludedFiles []string // inclusion filter, defaults to "*.js"
	ExcludedFiles []string // exclusion filter on files to skip from path
}

// Source groups the directories (or other file systems) that provide the
// modules of one bundle.
type Source struct {
	Name string

	fses []rootedFS
}

type rootedFS struct {
	root string
	fsys fs.FS
}

func NewSource(name string) *Source {
	return &Source{
		Name: name,
	}
}

func (s *Source) AddDir(d Dir) error {
	root, err := filepath.Abs(d.Path)
	if err != nil {
		return err
	}

	included := d.IncludedFiles
	if len(included) == 0 {
		included = []string{"*" + SourceSuffix}
	}

	f, err := jsfs.NewFilterFS(os.DirFS(root), included, d.ExcludedFiles)
	if err != nil {
		return err
	}

	s.AddFS(root, f)
	return nil
}

// AddFS adds a file system whose files are identified by paths under root.
func (s *Source) AddFS(root string, f fs.FS) {
	s.fses = append(s.fses, rootedFS{root: root, fsys: f})
}

// Files reads every file of the source, in lexical order per file system,
// skipping those matching one of the excluded patterns.
func (s *Source) Files(excluded []string) ([]File, error) {
	var files []File

	for _, r := range s.fses {
		fsys, err := jsfs.NewFilterFS(r.fsys, nil, excluded)
		if err != nil {
			return nil, err
		}

		err = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}

			bs, err := fs.ReadFile(fsys, path)
			if err != nil {
				return err
			}

			files = append(files, File{
				Path:     filepath.Join(r.root, filepath.FromSlash(path)),
				Contents: bs,
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", s.Name, err)
		}
	}

	return files, nil
}
