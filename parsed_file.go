package razor

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
)

// ParsedFile is a view file known to a ViewEngine.
type ParsedFile struct {
	// Name is the key of the compiled unit, VirtualPath#Hash.
	Name string
	// VirtualPath is "~/" followed by the slash separated path of the file.
	VirtualPath string
	// Raw is the raw file content. It is empty for views loaded from a
	// precompiled store.
	Raw string
	// Hash identifies Raw.
	Hash string
	// Precompiled is set for views loaded from a store.
	Precompiled bool
	// ParsedAt is the time when the file was read in unix milliseconds
	ParsedAt int64
}

func newParsedFile(vp, raw string, parsedAt int64) *ParsedFile {
	hash := hashSource(raw)
	return &ParsedFile{
		Name:        unitKey(vp, hash),
		VirtualPath: vp,
		Raw:         raw,
		Hash:        hash,
		ParsedAt:    parsedAt,
	}
}

// Controller returns the directory of the view below the view root, e.g.
// "Home" for ~/Views/Home/Index.cshtml.
func (p *ParsedFile) Controller(root string) string {
	return controllerOf(p.VirtualPath, root)
}

func controllerOf(vp, root string) string {
	i := strings.Index(vp, root)
	if i < 0 {
		return ""
	}
	return path.Dir(vp[i+len(root):])
}

func unitKey(vp, hash string) string {
	return vp + "#" + hash
}

func hashSource(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:8])
}
