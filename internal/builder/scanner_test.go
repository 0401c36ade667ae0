package builder_test

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jsbundle/jsbundle/internal/builder"
	"github.com/jsbundle/jsbundle/internal/test/tempfs"
)

func TestScanner(t *testing.T) {

	cases := []struct {
		note      string
		files     map[string]string // extra files on disk, relative to the temp root
		src       string
		prefixes  []string
		noRootDir bool
		exp       []string // relative to the temp root
	}{
		{
			note:     "single require",
			src:      `var Ice = require("../Ice/Long").Ice;`,
			prefixes: []string{"../Ice/"},
			exp:      []string{"src/Ice/Long.js"},
		},
		{
			note: "multi require on __M",
			src: `__M.require(module,
			[
				"../Ice/Long",
				"../Ice/Debug"
			]);`,
			prefixes: []string{"../Ice/"},
			exp:      []string{"src/Ice/Long.js", "src/Ice/Debug.js"},
		},
		{
			note: "multi require through member access",
			src: `var Ice = require("../Ice/ModuleRegistry").Ice;
			Ice.__M.require(module, ["../Ice/Long", "../Ice/Debug"]);`,
			prefixes: []string{"../Ice/"},
			exp:      []string{"src/Ice/ModuleRegistry.js", "src/Ice/Long.js", "src/Ice/Debug.js"},
		},
		{
			note:     "nested require",
			src:      `var x = require(require("../Ice/Inner").name);`,
			prefixes: []string{"../Ice/"},
			exp:      []string{"src/Ice/Inner.js"},
		},
		{
			note: "prefixes filter candidates",
			src: `var fs = require("fs");
			var Ice = require("../Ice/Long").Ice;
			var IceGrid = require("../IceGrid/Admin").IceGrid;
			var Other = require("../Other/Thing").Other;`,
			prefixes: []string{"../Ice/", "../IceGrid/"},
			exp:      []string{"src/Ice/Long.js", "src/IceGrid/Admin.js"},
		},
		{
			note: "duplicates keep first occurrence",
			src: `var A = require("../Ice/A");
			var B = require("../Ice/B");
			Ice.__M.require(module, ["../Ice/B", "../Ice/A", "../Ice/C"]);`,
			prefixes: []string{"../Ice/"},
			exp:      []string{"src/Ice/A.js", "src/Ice/B.js", "src/Ice/C.js"},
		},
		{
			note: "non literal arguments ignored",
			src: `var name = "../Ice/A";
			var A = require(name);
			__M.require(module, names);
			__M.require(module, [name, "../Ice/B"]);`,
			prefixes: []string{"../Ice/"},
			exp:      []string{"src/Ice/B.js"},
		},
		{
			note:     "other callees ignored",
			src:      `foo.require("../Ice/A"); __M.module(["../Ice/B"]); X.__N.require(module, ["../Ice/C"]);`,
			prefixes: []string{"../Ice/"},
			exp:      nil,
		},
		{
			note: "browser override",
			files: map[string]string{
				"src/Ice/browser/Buffer.js": "// browser",
			},
			src:      `var Ice = require("../Ice/Buffer").Ice; var L = require("../Ice/Long").Ice;`,
			prefixes: []string{"../Ice/"},
			exp:      []string{"src/Ice/browser/Buffer.js", "src/Ice/Long.js"},
		},
		{
			note: "override directory is not a file",
			files: map[string]string{
				"src/Ice/browser/Buffer.js/keep": "",
			},
			src:      `var Ice = require("../Ice/Buffer").Ice;`,
			prefixes: []string{"../Ice/"},
			exp:      []string{"src/Ice/Buffer.js"},
		},
		{
			note:      "resolution relative to the module without a source dir",
			src:       `var Ice = require("../Ice/Long").Ice;`,
			prefixes:  []string{"../Ice/"},
			noRootDir: true,
			exp:       []string{"src/Ice/Long.js"},
		},
		{
			note:     "single quoted specifier",
			src:      `var Ice = require('../Ice/Long').Ice;`,
			prefixes: []string{"../Ice/"},
			exp:      []string{"src/Ice/Long.js"},
		},
		{
			note:     "escaped specifier",
			src:      `var Ice = require("..\/Ice\u002FLong").Ice;`,
			prefixes: []string{"../Ice/"},
			exp:      []string{"src/Ice/Long.js"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			tempfs.WithTempFS(t, tc.files, func(t *testing.T, root string) {
				sourceDir := filepath.Join(root, "src", "Ice")
				current := filepath.Join(sourceDir, "Current.js")

				s := builder.NewScanner(sourceDir, tc.prefixes)
				if tc.noRootDir {
					s = builder.NewScanner("", tc.prefixes)
				}

				deps, err := s.Scan(current, []byte(tc.src))
				if err != nil {
					t.Fatal(err)
				}

				var exp []string
				for _, p := range tc.exp {
					exp = append(exp, filepath.Join(root, filepath.FromSlash(p)))
				}

				if diff := cmp.Diff(exp, deps); diff != "" {
					t.Fatal("unexpected dependencies (-want,+got):", diff)
				}
			})
		})
	}
}

func TestScannerParseError(t *testing.T) {
	s := builder.NewScanner(t.TempDir(), []string{"../Ice/"})

	_, err := s.Scan("/src/Ice/Broken.js", []byte(`var Ice = require("../Ice/Long"`))

	var perr *builder.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if perr.Path != "/src/Ice/Broken.js" {
		t.Fatalf("unexpected path %q", perr.Path)
	}
}

func TestScannerStatError(t *testing.T) {
	stat := func(string) (fs.FileInfo, error) {
		return nil, fs.ErrPermission
	}

	s := builder.NewScanner(t.TempDir(), []string{"../Ice/"}).WithStat(stat)

	_, err := s.Scan("/src/Ice/A.js", []byte(`var Ice = require("../Ice/Long").Ice;`))
	if !errors.Is(err, fs.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}

	// Dropped candidates never touch the file system.
	deps, err := s.Scan("/src/Ice/A.js", []byte(`var fs = require("fs");`))
	if err != nil || len(deps) != 0 {
		t.Fatalf("unexpected result %v, %v", deps, err)
	}
}

func TestScannerWithoutOverrideDir(t *testing.T) {
	files := map[string]string{
		"src/Ice/browser/Buffer.js": "// browser",
	}

	tempfs.WithTempFS(t, files, func(t *testing.T, root string) {
		sourceDir := filepath.Join(root, "src", "Ice")
		s := builder.NewScanner(sourceDir, []string{"../Ice/"}).WithOverrideDir("")

		deps, err := s.Scan(filepath.Join(sourceDir, "A.js"), []byte(`require("../Ice/Buffer");`))
		if err != nil {
			t.Fatal(err)
		}

		exp := []string{filepath.Join(sourceDir, "Buffer.js")}
		if diff := cmp.Diff(exp, deps); diff != "" {
			t.Fatal("unexpected dependencies (-want,+got):", diff)
		}
	})
}
