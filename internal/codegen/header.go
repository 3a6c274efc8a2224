package codegen

import (
	"errors"
	"strings"
)

const (
	headerOpen  = "{{/*\n"
	headerClose = "*/}}"
	keyPrefix   = "razor:"
)

// Header is the metadata the generator records at the top of generated
// source. It lets precompiled source be loaded without the markup.
type Header struct {
	Class        string
	Base         string
	Model        string
	DynamicModel bool
	Imports      []string
	Sections     []string
}

// BaseName returns the base type name without type arguments.
func (h Header) BaseName() string {
	if i := strings.IndexByte(h.Base, '['); i >= 0 {
		return h.Base[:i]
	}
	return h.Base
}

func (h Header) render() string {
	var b strings.Builder
	b.WriteString(headerOpen)
	line := func(key, value string) {
		b.WriteString(keyPrefix)
		b.WriteString(key)
		if value != "" {
			b.WriteByte(' ')
			b.WriteString(value)
		}
		b.WriteByte('\n')
	}
	line("class", h.Class)
	line("base", h.Base)
	if h.Model != "" {
		line("model", h.Model)
	}
	if h.DynamicModel {
		line("dynamic-model", "")
	}
	for _, ns := range h.Imports {
		line("import", ns)
	}
	for _, s := range h.Sections {
		line("section", s)
	}
	b.WriteString(headerClose)
	return b.String()
}

// ReadHeader extracts the header from generated source.
func ReadHeader(text string) (Header, error) {
	var h Header
	if !strings.HasPrefix(text, headerOpen) {
		return h, errors.New("generated source has no razor header")
	}
	end := strings.Index(text, headerClose)
	if end < 0 {
		return h, errors.New("generated source has an unterminated razor header")
	}
	for _, line := range strings.Split(text[len(headerOpen):end], "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, keyPrefix) {
			continue
		}
		key, value, _ := strings.Cut(strings.TrimPrefix(line, keyPrefix), " ")
		switch key {
		case "class":
			h.Class = value
		case "base":
			h.Base = value
		case "model":
			h.Model = value
		case "dynamic-model":
			h.DynamicModel = true
		case "import":
			h.Imports = append(h.Imports, value)
		case "section":
			h.Sections = append(h.Sections, value)
		}
	}
	return h, nil
}
