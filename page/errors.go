package page

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTemplateNotFound is matched by every TemplateNotFoundError.
var ErrTemplateNotFound = errors.New("template not found")

// TemplateNotFoundError reports a page name that has no compiled unit.
type TemplateNotFoundError struct {
	Name string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("no compiled template exists with the name %q", e.Name)
}

func (e *TemplateNotFoundError) Is(target error) bool {
	return target == ErrTemplateNotFound
}

// MissingSectionError is returned when a layout requires a section the child
// page never declared.
type MissingSectionError struct {
	Section string
	Page    string
}

func (e *MissingSectionError) Error() string {
	if e.Page == "" {
		return fmt.Sprintf("section %q is required", e.Section)
	}
	return fmt.Sprintf("[%s] section %q is required", e.Page, e.Section)
}

// DuplicateSectionError is returned when a page declares the same section twice.
type DuplicateSectionError struct {
	Section string
	Page    string
}

func (e *DuplicateSectionError) Error() string {
	if e.Page == "" {
		return fmt.Sprintf("section %q is already defined", e.Section)
	}
	return fmt.Sprintf("[%s] section %q is already defined", e.Page, e.Section)
}

// LayoutCycleError is returned when a layout chain revisits a page.
type LayoutCycleError struct {
	Chain []string
}

func (e *LayoutCycleError) Error() string {
	return "layout cycle detected: " + strings.Join(e.Chain, " -> ")
}
