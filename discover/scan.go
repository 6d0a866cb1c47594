package discover

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Import is a single import statement found in a source file.
type Import struct {
	// Module is the dotted module name as written, without leading dots.
	// Empty for "from . import x".
	Module string

	// Names are the names of a from-import. Nil for a plain import.
	// A star import is recorded as "*".
	Names []string

	// Level is the number of leading dots of a relative import.
	Level int

	// Line is the 1-based line of the statement.
	Line int
}

// IsFrom reports whether the import is a from-import.
func (i Import) IsFrom() bool {
	return i.Names != nil
}

// ScanResult is the static import analysis of one file.
type ScanResult struct {
	Path    string
	Hash    string
	Imports []Import

	// GlobalNames are the names bound at module level (definitions,
	// assignments and import aliases).
	GlobalNames []string

	// StarImport is set when the module does "from x import *", which makes
	// its global names unknowable statically.
	StarImport bool
}

// HasGlobal reports whether name is bound at module level.
func (r *ScanResult) HasGlobal(name string) bool {
	for _, g := range r.GlobalNames {
		if g == name {
			return true
		}
	}
	return false
}

// ImportScanner extracts imports from source content.
type ImportScanner interface {
	Scan(ctx context.Context, path string, content []byte) (*ScanResult, error)
}

// ComputeHash returns a short content hash used for cache validation.
func ComputeHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:8])
}
