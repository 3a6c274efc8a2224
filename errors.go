package razor

import (
	"errors"

	"github.com/tqc/go-razor/internal/compiler"
	"github.com/tqc/go-razor/internal/dynamic"
	"github.com/tqc/go-razor/internal/markup"
	"github.com/tqc/go-razor/page"
)

// Errors returned by the service and the view engine. Match them with
// errors.As or errors.Is.
type (
	ParseError            = markup.ParseError
	CompilationError      = compiler.CompilationError
	Diagnostic            = compiler.Diagnostic
	Location              = compiler.Location
	MissingSectionError   = page.MissingSectionError
	DuplicateSectionError = page.DuplicateSectionError
	LayoutCycleError      = page.LayoutCycleError
	TemplateNotFoundError = page.TemplateNotFoundError
	MemberNotFoundError   = dynamic.MemberNotFoundError
)

var (
	// ErrTemplateNotFound matches every TemplateNotFoundError.
	ErrTemplateNotFound = page.ErrTemplateNotFound
	// ErrNameRequired is returned by Compile when no name is given.
	ErrNameRequired = errors.New("[razor] a template name is required")
)
