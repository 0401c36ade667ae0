package builder

import (
	"regexp"
	"strings"
)

const (
	skipMarker    = "/* slice2js browser-bundle-skip */"
	skipEndMarker = "/* slice2js browser-bundle-skip-end */"

	typeHelper = "__M.type"
	evalFunc   = "eval"

	modulePreamble = "\n    (function()\n    {\n"
	moduleEpilogue = "    }());\n"
	moduleIndent   = "        "
)

var (
	requireStmt      = regexp.MustCompile(`var .* require\(".*"\).*;`)
	multiRequireCall = regexp.MustCompile(`__M\.require\(`)
	moduleStmt       = regexp.MustCompile(`var .* = __M.module\(`)

	exportPrefixes = []string{"module.exports.", "exports.", "exports ="}
)

// Rewrite strips the module-system statements from one module. It works
// line by line on the raw text and never re-parses it: every line that no
// rule touches is returned byte for byte.
//
// Rules, tested against the trimmed line, in order:
//   - lines between the skip markers, markers included, are dropped
//   - var x = require("...") lines are dropped
//   - __M.require( and var x = __M.module( statements are dropped, up to
//     the line holding their terminating semicolon
//   - module.exports., exports. and exports = assignments are dropped
//   - __M.type is replaced with eval
func Rewrite(text []byte) []string {
	lines := strings.Split(string(text), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	var (
		out      []string
		excluded bool
		skipping bool
	)

	for _, raw := range lines {
		line := strings.TrimSpace(raw)

		if line == skipMarker {
			excluded = true
			continue
		}
		if line == skipEndMarker {
			excluded = false
			continue
		}
		if excluded {
			continue
		}

		if requireStmt.MatchString(line) {
			continue
		}

		if multiRequireCall.MatchString(line) || moduleStmt.MatchString(line) {
			if !strings.Contains(line, ";") {
				skipping = true
			}
			continue
		}

		if skipping {
			if strings.Contains(line, ";") {
				skipping = false
			}
			continue
		}

		if hasExportPrefix(line) {
			continue
		}

		out = append(out, strings.ReplaceAll(raw, typeHelper, evalFunc))
	}

	return out
}

func hasExportPrefix(line string) bool {
	for _, prefix := range exportPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// Module rewrites text and wraps the surviving lines in their own function
// scope, so top-level bindings of different modules cannot collide once
// concatenated.
func Module(text []byte) string {
	var sb strings.Builder
	writeModule(&sb, text)
	return sb.String()
}

func writeModule(sb *strings.Builder, text []byte) {
	sb.WriteString(modulePreamble)
	for _, line := range Rewrite(text) {
		sb.WriteString(moduleIndent)
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteString(moduleEpilogue)
}
