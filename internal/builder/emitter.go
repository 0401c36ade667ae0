package builder

import (
	"strings"
)

const (
	// DefaultGlobal is the object the namespaces are published on.
	DefaultGlobal = "window"

	// reservedNamespace gets a sub-namespace for generated code and a local
	// alias to it.
	reservedNamespace = "Ice"
	generatedNS       = "Slice"

	bundlePreamble = "(function()\n{\n"
	bundleEpilogue = "}());\n\n"
	preambleIndent = "    "
)

// emitter assembles the bundle text. It owns the output buffer, which only
// ever grows.
type emitter struct {
	sb         strings.Builder
	global     string
	namespaces []string
}

func newEmitter(global string, namespaces []string) *emitter {
	if global == "" {
		global = DefaultGlobal
	}
	return &emitter{global: global, namespaces: namespaces}
}

// preamble opens the bundle scope and makes sure every namespace exists on
// the global object without clobbering one defined by an earlier script.
func (e *emitter) preamble() {
	e.sb.WriteString(bundlePreamble)

	reserved := false
	for _, ns := range e.namespaces {
		e.line("%g.%n = %g.%n || {};", ns)
		if ns == reservedNamespace {
			reserved = true
			e.line("%n."+generatedNS+" = %n."+generatedNS+" || {};", ns)
		}
	}

	// The alias is left unterminated; the first module opens on a new line.
	if reserved {
		e.sb.WriteString(preambleIndent + "var " + generatedNS + " = " + reservedNamespace + "." + generatedNS + ";")
	}
}

func (e *emitter) module(text []byte) {
	writeModule(&e.sb, text)
}

// epilogue publishes every namespace on the global object and closes the
// bundle scope.
func (e *emitter) epilogue() {
	e.sb.WriteByte('\n')
	for _, ns := range e.namespaces {
		e.line("%g.%n = %n;", ns)
	}
	e.sb.WriteString(bundleEpilogue)
}

// line writes one indented preamble/epilogue line, expanding %g to the
// global object and %n to ns.
func (e *emitter) line(format, ns string) {
	r := strings.NewReplacer("%g", e.global, "%n", ns)
	e.sb.WriteString(preambleIndent)
	e.sb.WriteString(r.Replace(format))
	e.sb.WriteByte('\n')
}

func (e *emitter) bytes() []byte {
	return []byte(e.sb.String())
}
