package builder

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"
)

const (
	requireFunc     = "require"
	moduleNamespace = "__M"

	// DefaultOverrideDir is the directory, next to a required module, that
	// holds the browser variant of that module.
	DefaultOverrideDir = "browser"
)

// Scanner extracts the dependencies of one module.
//
// Two call shapes are recognized anywhere in the tree: require("x") with a
// string literal argument, and __M.require(m, ["a", "b"]) where __M may
// also be reached through a member access (Ice.__M.require). Only
// specifiers under one of the allowed prefixes are kept.
type Scanner struct {
	sourceDir   string
	prefixes    []string
	overrideDir string
	stat        func(string) (fs.FileInfo, error)
}

func NewScanner(sourceDir string, prefixes []string) *Scanner {
	return &Scanner{
		sourceDir:   sourceDir,
		prefixes:    prefixes,
		overrideDir: DefaultOverrideDir,
		stat:        os.Stat,
	}
}

// WithOverrideDir sets the override directory name. An empty name disables
// override resolution.
func (s *Scanner) WithOverrideDir(dir string) *Scanner {
	s.overrideDir = dir
	return s
}

// WithStat replaces the function used for existence checks.
func (s *Scanner) WithStat(stat func(string) (fs.FileInfo, error)) *Scanner {
	s.stat = stat
	return s
}

// Scan parses src and returns the canonical paths of the modules it
// requires, deduplicated, in first-seen order.
func (s *Scanner) Scan(path string, src []byte) ([]string, error) {
	// NewInputString copies src; the parser appends a NULL to its input.
	tree, err := js.Parse(parse.NewInputString(string(src)), js.Options{})
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	v := &requireVisitor{}
	for _, stmt := range tree.List {
		js.Walk(v, stmt)
	}

	var deps []string
	for _, spec := range v.specifiers {
		candidate := spec + SourceSuffix
		if !s.allowed(candidate) {
			continue
		}

		resolved, err := s.resolve(path, candidate)
		if err != nil {
			return nil, err
		}

		if !slices.Contains(deps, resolved) {
			deps = append(deps, resolved)
		}
	}

	return deps, nil
}

func (s *Scanner) allowed(candidate string) bool {
	return slices.ContainsFunc(s.prefixes, func(prefix string) bool {
		return strings.HasPrefix(candidate, prefix)
	})
}

// resolve maps a candidate to an absolute path. The browser variant in the
// override directory wins over the module itself when it exists.
func (s *Scanner) resolve(current, candidate string) (string, error) {
	base := s.sourceDir
	if base == "" {
		base = filepath.Dir(current)
	}

	rel := filepath.FromSlash(candidate)

	if s.overrideDir != "" {
		override := filepath.Join(base, filepath.Dir(rel), s.overrideDir, filepath.Base(rel))
		ok, err := s.isFile(override)
		if err != nil {
			return "", err
		}
		if ok {
			return filepath.Abs(override)
		}
	}

	return filepath.Abs(filepath.Join(base, rel))
}

func (s *Scanner) isFile(path string) (bool, error) {
	fi, err := s.stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return fi.Mode().IsRegular(), nil
}

// requireVisitor collects specifiers in post-order: the arguments of a call
// are visited before the call itself.
type requireVisitor struct {
	specifiers []string
}

func (v *requireVisitor) Enter(js.INode) js.IVisitor {
	return v
}

func (v *requireVisitor) Exit(n js.INode) {
	call, ok := n.(*js.CallExpr)
	if !ok {
		return
	}

	args := call.Args.List

	switch {
	case isIdentifier(call.X, requireFunc):
		if len(args) > 0 {
			if spec, ok := stringLiteral(args[0].Value); ok {
				v.specifiers = append(v.specifiers, spec)
			}
		}

	case isMultiRequire(call.X):
		if len(args) < 2 {
			return
		}
		arr, ok := args[1].Value.(*js.ArrayExpr)
		if !ok {
			return
		}
		for _, el := range arr.List {
			if spec, ok := stringLiteral(el.Value); ok {
				v.specifiers = append(v.specifiers, spec)
			}
		}
	}
}

// isMultiRequire matches __M.require and <expr>.__M.require.
func isMultiRequire(callee js.IExpr) bool {
	obj, name, ok := member(callee)
	if !ok || name != requireFunc {
		return false
	}
	if isIdentifier(obj, moduleNamespace) {
		return true
	}
	_, name, ok = member(obj)
	return ok && name == moduleNamespace
}

func isIdentifier(e js.IExpr, name string) bool {
	v, ok := e.(*js.Var)
	return ok && string(v.Data) == name
}

// member splits a dotted member access into its object and property name.
func member(e js.IExpr) (js.IExpr, string, bool) {
	dot, ok := e.(*js.DotExpr)
	if !ok {
		return nil, "", false
	}
	switch y := any(dot.Y).(type) {
	case js.LiteralExpr:
		return dot.X, string(y.Data), true
	case *js.LiteralExpr:
		return dot.X, string(y.Data), true
	}
	return nil, "", false
}

func stringLiteral(e js.IExpr) (string, bool) {
	lit, ok := e.(*js.LiteralExpr)
	if !ok || lit.TokenType != js.StringToken {
		return "", false
	}
	return unquote(lit.Data)
}

// unquote decodes a single or double quoted JavaScript string literal.
func unquote(data []byte) (string, bool) {
	if len(data) < 2 || (data[0] != '"' && data[0] != '\'') || data[len(data)-1] != data[0] {
		return "", false
	}
	s := string(data[1 : len(data)-1])
	if !strings.Contains(s, `\`) {
		return s, true
	}

	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'v':
			sb.WriteByte('\v')
		case '0':
			sb.WriteByte(0)
		case '\n':
			// line continuation
		case 'x':
			if r, n := hexRune(s[i+1:], 2); n > 0 {
				sb.WriteRune(r)
				i += n
			} else {
				sb.WriteByte('x')
			}
		case 'u':
			if r, n := unicodeEscape(s[i+1:]); n > 0 {
				sb.WriteRune(r)
				i += n
			} else {
				sb.WriteByte('u')
			}
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String(), true
}

func unicodeEscape(s string) (rune, int) {
	if strings.HasPrefix(s, "{") {
		end := strings.IndexByte(s, '}')
		if end < 2 {
			return 0, 0
		}
		r, n := hexRune(s[1:end], end-1)
		if n == 0 || !utf8.ValidRune(r) {
			return 0, 0
		}
		return r, end + 1
	}
	return hexRune(s, 4)
}

func hexRune(s string, digits int) (rune, int) {
	if len(s) < digits {
		return 0, 0
	}
	v, err := strconv.ParseUint(s[:digits], 16, 32)
	if err != nil {
		return 0, 0
	}
	return rune(v), digits
}
