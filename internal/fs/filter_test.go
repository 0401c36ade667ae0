package fs_test

import (
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	jsfs "github.com/jsbundle/jsbundle/internal/fs"
)

func TestFilterFS(t *testing.T) {
	src := fstest.MapFS{
		"Ice/Long.js":             {Data: []byte("long")},
		"Ice/Long.min.js":         {Data: []byte("long")},
		"Ice/Debug.js":            {Data: []byte("debug")},
		"Ice/README.md":           {Data: []byte("readme")},
		"Ice/browser/Buffer.js":   {Data: []byte("buffer")},
		"node_modules/x/index.js": {Data: []byte("x")},
	}

	cases := []struct {
		note     string
		included []string
		excluded []string
		exp      []string
	}{
		{
			note: "everything",
			exp: []string{
				"Ice/Debug.js",
				"Ice/Long.js",
				"Ice/Long.min.js",
				"Ice/README.md",
				"Ice/browser/Buffer.js",
				"node_modules/x/index.js",
			},
		},
		{
			note:     "base name inclusion",
			included: []string{"*.js"},
			exp: []string{
				"Ice/Debug.js",
				"Ice/Long.js",
				"Ice/Long.min.js",
				"Ice/browser/Buffer.js",
				"node_modules/x/index.js",
			},
		},
		{
			note:     "path inclusion",
			included: []string{"Ice/*.js"},
			exp: []string{
				"Ice/Debug.js",
				"Ice/Long.js",
				"Ice/Long.min.js",
			},
		},
		{
			note:     "exclusion wins",
			included: []string{"*.js"},
			excluded: []string{"*.min.js", "node_modules", "Ice/browser/**"},
			exp: []string{
				"Ice/Debug.js",
				"Ice/Long.js",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			fsys, err := jsfs.NewFilterFS(src, tc.included, tc.excluded)
			if err != nil {
				t.Fatal(err)
			}

			var got []string
			err = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() {
					got = append(got, path)
				}
				return nil
			})
			if err != nil {
				t.Fatal(err)
			}

			if diff := cmp.Diff(tc.exp, got); diff != "" {
				t.Fatal("unexpected files (-want,+got):", diff)
			}

			for _, p := range got {
				if _, err := fs.ReadFile(fsys, p); err != nil {
					t.Fatalf("read %s: %v", p, err)
				}
			}
		})
	}
}

func TestFilterFSHidden(t *testing.T) {
	src := fstest.MapFS{
		"a.js":  {Data: []byte("a")},
		"b.txt": {Data: []byte("b")},
	}

	fsys, err := jsfs.NewFilterFS(src, []string{"*.js"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := fsys.Open("b.txt"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not exist, got %v", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "a.js" {
		t.Fatalf("unexpected entries %v", entries)
	}
}

func TestFilterFSInvalidPattern(t *testing.T) {
	if _, err := jsfs.NewFilterFS(fstest.MapFS{}, []string{"[a-"}, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestMatch(t *testing.T) {
	cases := []struct {
		patterns []string
		name     string
		exp      bool
	}{
		{patterns: []string{"*.js"}, name: "Ice/Long.js", exp: true},
		{patterns: []string{"Ice/*.js"}, name: "Ice/Long.js", exp: true},
		{patterns: []string{"Ice/*.js"}, name: "Ice/browser/Long.js", exp: false},
		{patterns: []string{"Ice/**.js"}, name: "Ice/browser/Long.js", exp: true},
		{patterns: []string{"*.min.js"}, name: "Long.js", exp: false},
		{patterns: nil, name: "Long.js", exp: false},
	}

	for _, tc := range cases {
		got, err := jsfs.Match(tc.patterns, tc.name)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.exp {
			t.Errorf("Match(%v, %q): expected %v, got %v", tc.patterns, tc.name, tc.exp, got)
		}
	}
}
