package compiler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Location is a position in generated source.
type Location struct {
	Template string
	Line     int
	Column   int
}

func (l Location) String() string {
	switch {
	case l.Column > 0:
		return fmt.Sprintf("%s:%d:%d", l.Template, l.Line, l.Column)
	case l.Line > 0:
		return fmt.Sprintf("%s:%d", l.Template, l.Line)
	}
	return l.Template
}

// Diagnostic is one compiler message.
type Diagnostic struct {
	Message  string
	Location Location
}

func (d Diagnostic) String() string {
	if loc := d.Location.String(); loc != "" {
		return loc + ": " + d.Message
	}
	return d.Message
}

// CompilationError reports generated source the native compiler rejected.
type CompilationError struct {
	Name        string
	Diagnostics []Diagnostic
}

func (e *CompilationError) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = d.String()
	}
	return fmt.Sprintf("[compiler] failed to compile %q: %s", e.Name, strings.Join(msgs, "; "))
}

// reTemplateError matches errors produced by text/template and templatecheck,
// "template: name:line[:col]: message".
var reTemplateError = regexp.MustCompile(`^template: (.*?):(\d+)(?::(\d+))?: (.*)$`)

// diagnose converts a template error into a diagnostic.
func diagnose(name string, err error) Diagnostic {
	msg := err.Error()
	m := reTemplateError.FindStringSubmatch(msg)
	if m == nil {
		return Diagnostic{Message: msg, Location: Location{Template: name}}
	}
	line, _ := strconv.Atoi(m[2])
	col, _ := strconv.Atoi(m[3])
	return Diagnostic{
		Message:  m[4],
		Location: Location{Template: m[1], Line: line, Column: col},
	}
}
