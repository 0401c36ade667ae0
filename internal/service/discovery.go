package service

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/jsbundle/jsbundle/internal/builder"
	"github.com/jsbundle/jsbundle/internal/config"
	jsfs "github.com/jsbundle/jsbundle/internal/fs"
	"github.com/jsbundle/jsbundle/internal/logging"
)

// discover reads the input files of a bundle from its configured
// directories. Directories that exist but hold no matching file are
// reported and otherwise ignored.
func discover(b *config.Bundle, log *logging.Logger) ([]builder.File, error) {
	src := builder.NewSource(b.Name)

	for _, d := range b.Directories {
		fi, err := os.Stat(d.Path)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", d.Path)
		}

		dir := builder.Dir{
			Path:          d.Path,
			IncludedFiles: d.IncludedFiles,
			ExcludedFiles: d.ExcludedFiles,
		}
		if err := src.AddDir(dir); err != nil {
			return nil, err
		}

		if ok, err := containsModules(dir); err != nil {
			return nil, err
		} else if !ok {
			log.Warnf("directory %s contains no modules", d.Path)
		}
	}

	return src.Files(b.ExcludedFiles)
}

func containsModules(d builder.Dir) (bool, error) {
	included := d.IncludedFiles
	if len(included) == 0 {
		included = []string{"*" + builder.SourceSuffix}
	}

	fsys, err := jsfs.NewFilterFS(os.DirFS(d.Path), included, d.ExcludedFiles)
	if err != nil {
		return false, err
	}

	return jsfs.FSContainsFiles(fsys)
}

// Stale reports whether target has to be rebuilt from inputs: it does not
// exist yet, or one of the inputs was modified after it.
func Stale(target string, inputs []builder.File) (bool, error) {
	fi, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	} else if err != nil {
		return false, err
	}

	latest, err := newest(inputs)
	if err != nil {
		return false, err
	}

	return latest.After(fi.ModTime()), nil
}

// newest returns the latest modification time of the inputs.
func newest(inputs []builder.File) (time.Time, error) {
	var latest time.Time
	for _, f := range inputs {
		fi, err := os.Stat(f.Path)
		if err != nil {
			return time.Time{}, err
		}
		if fi.ModTime().After(latest) {
			latest = fi.ModTime()
		}
	}
	return latest, nil
}
