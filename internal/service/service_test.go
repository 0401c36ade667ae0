package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jsbundle/jsbundle/internal/config"
	"github.com/jsbundle/jsbundle/internal/logging"
	"github.com/jsbundle/jsbundle/internal/test/tempfs"
)

var modules = map[string]string{
	"src/Ice/A.js": `var Ice = require("../Ice/B").Ice;
Ice.A = function() { return Ice.B(); };
module.exports.Ice = Ice;
`,
	"src/Ice/B.js": `var Ice = require("../Ice/C").Ice;
Ice.B = function() { return Ice.C(); };
module.exports.Ice = Ice;
`,
	"src/Ice/C.js": `var Ice = {};
Ice.C = function() { return 1; };
module.exports.Ice = Ice;
`,
	"src/Glacier2/Router.js": `Glacier2.Router = function() {};
`,
}

const iceConfig = `
bundles:
  ice:
    target: lib/Ice.js
    source_dir: src/Ice
    directories: [{path: src/Ice}]
    namespaces: [Ice]
    allowed_prefixes: ["../Ice/"]
  glacier2:
    target: lib/Glacier2.js
    directories: [{path: src/Glacier2}]
    namespaces: [Glacier2]
`

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func parseConfig(t *testing.T, root, s string) *config.Root {
	t.Helper()

	r, err := config.Parse([]byte(s))
	if err != nil {
		t.Fatal(err)
	}
	r.ResolvePaths(root)
	return r
}

func newService(t *testing.T, root, s string) (*Service, *syncBuffer) {
	t.Helper()

	logs := &syncBuffer{}
	log := logging.NewLogger(logging.Config{Level: logging.Debug, Format: logging.JSON, Output: logs})
	return New().WithConfig(parseConfig(t, root, s)).WithLogger(log), logs
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	bs, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(bs)
}

func TestServiceBuild(t *testing.T) {
	tempfs.WithTempFS(t, modules, func(t *testing.T, root string) {
		svc, logs := newService(t, root, iceConfig)

		if err := svc.Build(t.Context()); err != nil {
			t.Fatal(err)
		}

		ice := readFile(t, filepath.Join(root, "lib", "Ice.js"))
		c, b, a := strings.Index(ice, "Ice.C = function"), strings.Index(ice, "Ice.B = function"), strings.Index(ice, "Ice.A = function")
		if c < 0 || !(c < b && b < a) {
			t.Fatalf("unexpected module order in:\n%s", ice)
		}

		glacier2 := readFile(t, filepath.Join(root, "lib", "Glacier2.js"))
		if !strings.Contains(glacier2, "    window.Glacier2 = window.Glacier2 || {};\n") {
			t.Fatalf("expected Glacier2 namespace in:\n%s", glacier2)
		}

		fi, err := os.Stat(filepath.Join(root, "lib", "Ice.js"))
		if err != nil {
			t.Fatal(err)
		}
		if fi.Mode().Perm() != 0o644 {
			t.Fatalf("expected mode 0644, got %v", fi.Mode().Perm())
		}

		for _, exp := range []string{"bundle glacier2: success", "bundle ice: success"} {
			if !strings.Contains(logs.String(), exp) {
				t.Fatalf("expected %q in logs:\n%s", exp, logs)
			}
		}

		// Nothing changed since the last build.
		svc, logs = newService(t, root, iceConfig)
		if err := svc.Build(t.Context()); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(logs.String(), "bundle ice: skipped") {
			t.Fatalf("expected ice to be skipped:\n%s", logs)
		}

		// Forced builds ignore modification times.
		svc, logs = newService(t, root, iceConfig)
		if err := svc.WithForce(true).Build(t.Context()); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(logs.String(), "bundle ice: success") {
			t.Fatalf("expected ice to be rebuilt:\n%s", logs)
		}

		// A modified input makes the bundle stale.
		future := time.Now().Add(time.Hour)
		if err := os.Chtimes(filepath.Join(root, "src", "Ice", "B.js"), future, future); err != nil {
			t.Fatal(err)
		}
		svc, logs = newService(t, root, iceConfig)
		if err := svc.WithBundles([]string{"ice"}).Build(t.Context()); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(logs.String(), "bundle ice: success") {
			t.Fatalf("expected ice to be rebuilt:\n%s", logs)
		}
		if strings.Contains(logs.String(), "bundle glacier2") {
			t.Fatalf("expected glacier2 not to be built:\n%s", logs)
		}
	})
}

func TestServiceBuildErrors(t *testing.T) {
	files := map[string]string{
		"src/Broken/Broken.js":   "var x = ;\n",
		"src/Glacier2/Router.js": "Glacier2.Router = 1;\n",
	}

	tempfs.WithTempFS(t, files, func(t *testing.T, root string) {
		svc, _ := newService(t, root, `
bundles:
  broken:
    target: lib/Broken.js
    directories: [{path: src/Broken}]
  glacier2:
    target: lib/Glacier2.js
    directories: [{path: src/Glacier2}]
  missing:
    target: lib/Missing.js
    directories: [{path: src/Missing}]
`)

		err := svc.Build(t.Context())
		if err == nil {
			t.Fatal("expected error")
		}

		var states []string
		for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
			var be *BuildError
			if !errors.As(e, &be) {
				t.Fatalf("expected BuildError, got %v", e)
			}
			states = append(states, be.Bundle+":"+be.State.String())
		}

		if diff := cmp.Diff([]string{"broken:build_failed", "missing:discovery_failed"}, states); diff != "" {
			t.Fatal("unexpected failures (-want,+got):", diff)
		}

		// The healthy bundle is built regardless.
		if _, err := os.Stat(filepath.Join(root, "lib", "Glacier2.js")); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(filepath.Join(root, "lib", "Broken.js")); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("expected no output for a broken bundle, got %v", err)
		}
	})
}

func TestServiceUnknownBundle(t *testing.T) {
	tempfs.WithTempFS(t, modules, func(t *testing.T, root string) {
		svc, _ := newService(t, root, iceConfig)
		err := svc.WithBundles([]string{"icegrid"}).Build(t.Context())
		if err == nil || !strings.Contains(err.Error(), `unknown bundle "icegrid"`) {
			t.Fatalf("unexpected error %v", err)
		}
	})
}

func TestServiceCheck(t *testing.T) {
	tempfs.WithTempFS(t, modules, func(t *testing.T, root string) {
		svc, _ := newService(t, root, iceConfig)
		if err := svc.Build(t.Context()); err != nil {
			t.Fatal(err)
		}

		var diff bytes.Buffer
		svc, _ = newService(t, root, iceConfig)
		if err := svc.WithCheck(&diff).Build(t.Context()); err != nil {
			t.Fatal(err)
		}
		if diff.Len() != 0 {
			t.Fatalf("expected no diff, got:\n%s", diff.String())
		}

		target := filepath.Join(root, "lib", "Ice.js")
		if err := os.WriteFile(target, []byte("stale\n"), 0o644); err != nil {
			t.Fatal(err)
		}

		svc, _ = newService(t, root, iceConfig)
		err := svc.WithCheck(&diff).Build(t.Context())
		if !errors.Is(err, errOutOfDate) {
			t.Fatalf("expected out of date error, got %v", err)
		}
		if !strings.Contains(diff.String(), "-stale") || !strings.Contains(diff.String(), "+(function()") {
			t.Fatalf("unexpected diff:\n%s", diff.String())
		}
		if readFile(t, target) != "stale\n" {
			t.Fatal("expected check mode not to write the target")
		}
	})
}

func TestServiceMinifyAndPublish(t *testing.T) {
	tempfs.WithTempFS(t, modules, func(t *testing.T, root string) {
		svc, _ := newService(t, root, `
bundles:
  ice:
    target: lib/Ice.js
    directories: [{path: src/Ice}]
    namespaces: [Ice]
    allowed_prefixes: ["../Ice/"]
    minify: true
    object_storage:
      filesystem:
        path: publish/Ice.js
`)

		if err := svc.Build(t.Context()); err != nil {
			t.Fatal(err)
		}

		target := readFile(t, filepath.Join(root, "lib", "Ice.js"))
		if strings.Contains(target, "\n    (function()") {
			t.Fatalf("expected minified output, got:\n%s", target)
		}

		published := readFile(t, filepath.Join(root, "publish", "Ice.js"))
		if published != target {
			t.Fatalf("expected published bundle to match target:\n%s\n---\n%s", published, target)
		}
	})
}

func TestServiceRunAndReload(t *testing.T) {
	tempfs.WithTempFS(t, modules, func(t *testing.T, root string) {
		path := filepath.Join(root, "jsbundle.yaml")
		write := func(namespace string) {
			s := `
bundles:
  glacier2:
    target: lib/Glacier2.js
    directories: [{path: src/Glacier2}]
    namespaces: [` + namespace + `]
    rebuild_interval: 50ms
`
			if err := os.WriteFile(path, []byte(s), 0o644); err != nil {
				t.Fatal(err)
			}
		}
		write("Glacier2")

		root1, err := config.Load([]string{path})
		if err != nil {
			t.Fatal(err)
		}

		svc := New().WithConfig(root1).WithConfigFiles([]string{path})

		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan error, 1)
		go func() { done <- svc.Run(ctx) }()

		target := filepath.Join(root, "lib", "Glacier2.js")
		waitFor(t, func() bool {
			bs, err := os.ReadFile(target)
			return err == nil && strings.Contains(string(bs), "window.Glacier2 = Glacier2;")
		})

		write("IceGrid")
		if err := svc.Reload(t.Context()); err != nil {
			t.Fatal(err)
		}

		waitFor(t, func() bool {
			bs, err := os.ReadFile(target)
			return err == nil && strings.Contains(string(bs), "window.IceGrid = IceGrid;")
		})

		if st := svc.Status()["glacier2"]; st.Message != "" || (st.State != BuildStateSuccess && st.State != BuildStateSkipped) {
			t.Fatalf("unexpected status %v", st)
		}

		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Fatal(err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("service did not stop")
		}
	})
}

func TestServiceReloadRechecksUnchangedBundles(t *testing.T) {
	tempfs.WithTempFS(t, modules, func(t *testing.T, root string) {
		path := filepath.Join(root, "jsbundle.yaml")
		err := os.WriteFile(path, []byte(`
bundles:
  glacier2:
    target: lib/Glacier2.js
    directories: [{path: src/Glacier2}]
    namespaces: [Glacier2]
    rebuild_interval: 1h
`), 0o644)
		if err != nil {
			t.Fatal(err)
		}

		cfg, err := config.Load([]string{path})
		if err != nil {
			t.Fatal(err)
		}

		svc := New().WithConfig(cfg).WithConfigFiles([]string{path})

		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan error, 1)
		go func() { done <- svc.Run(ctx) }()

		target := filepath.Join(root, "lib", "Glacier2.js")
		waitFor(t, func() bool {
			_, err := os.Stat(target)
			return err == nil
		})

		input := filepath.Join(root, "src", "Glacier2", "Router.js")
		if err := os.WriteFile(input, []byte("Glacier2.Edited = 1;\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		future := time.Now().Add(time.Minute)
		if err := os.Chtimes(input, future, future); err != nil {
			t.Fatal(err)
		}

		if err := svc.Reload(t.Context()); err != nil {
			t.Fatal(err)
		}

		waitFor(t, func() bool {
			bs, err := os.ReadFile(target)
			return err == nil && strings.Contains(string(bs), "Glacier2.Edited = 1;")
		})

		cancel()
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStale(t *testing.T) {
	old := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	cases := []struct {
		note   string
		target bool
		touch  time.Time
		exp    bool
	}{
		{note: "missing target", exp: true},
		{note: "up to date", target: true, touch: old, exp: false},
		{note: "newer input", target: true, touch: future, exp: true},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			tempfs.WithTempFS(t, map[string]string{"src/A.js": "a\n"}, func(t *testing.T, root string) {
				input := filepath.Join(root, "src", "A.js")
				target := filepath.Join(root, "lib", "A.js")

				if tc.target {
					if err := writeFile(target, []byte("bundle")); err != nil {
						t.Fatal(err)
					}
					if err := os.Chtimes(input, tc.touch, tc.touch); err != nil {
						t.Fatal(err)
					}
				}

				files, err := discover(&config.Bundle{Name: "a", Directories: []config.Directory{{Path: filepath.Join(root, "src")}}}, logging.NewNop())
				if err != nil {
					t.Fatal(err)
				}

				stale, err := Stale(target, files)
				if err != nil {
					t.Fatal(err)
				}
				if stale != tc.exp {
					t.Fatalf("expected stale=%v, got %v", tc.exp, stale)
				}
			})
		})
	}
}

func TestDiscoverEmptyDirectory(t *testing.T) {
	tempfs.WithTempFS(t, map[string]string{"src/README.md": "docs\n"}, func(t *testing.T, root string) {
		logs := &syncBuffer{}
		log := logging.NewLogger(logging.Config{Level: logging.Warn, Format: logging.JSON, Output: logs})

		files, err := discover(&config.Bundle{Name: "a", Directories: []config.Directory{{Path: filepath.Join(root, "src")}}}, log)
		if err != nil {
			t.Fatal(err)
		}
		if len(files) != 0 {
			t.Fatalf("expected no files, got %d", len(files))
		}
		if !strings.Contains(logs.String(), "contains no modules") {
			t.Fatalf("expected warning, got:\n%s", logs)
		}
	})
}
