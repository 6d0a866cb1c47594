// Package python provides Python import scanning using tree-sitter.
package python

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/c360studio/pydep/discover"
)

func init() {
	discover.DefaultRegistry.Register("python", []string{".py", ".pyw"},
		func() discover.ImportScanner {
			return NewScanner()
		})
}

// Scanner extracts import statements and module-level names from Python
// source. It sees imports at any depth (inside functions, try blocks and
// conditionals), matching what the interpreter's module finder reports.
type Scanner struct {
	parser *sitter.Parser
}

// NewScanner creates a new Python import scanner.
func NewScanner() *Scanner {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Scanner{parser: p}
}

// Scan parses content and extracts its imports. tree-sitter recovers from
// syntax errors, so a broken file yields whatever imports are recognisable.
func (s *Scanner) Scan(ctx context.Context, path string, content []byte) (*discover.ScanResult, error) {
	tree, err := s.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse file: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	result := &discover.ScanResult{
		Path:    path,
		Imports: make([]discover.Import, 0),
	}

	s.walkImports(root, content, result)

	globals := make(map[string]bool)
	s.collectGlobals(root, content, globals)
	for name := range globals {
		result.GlobalNames = append(result.GlobalNames, name)
	}

	return result, nil
}

// walkImports visits every node of the tree collecting imports.
func (s *Scanner) walkImports(node *sitter.Node, content []byte, result *discover.ScanResult) {
	switch node.Type() {
	case "import_statement":
		result.Imports = append(result.Imports, s.extractImport(node, content)...)
		return
	case "import_from_statement":
		if imp, ok := s.extractFromImport(node, content); ok {
			result.Imports = append(result.Imports, imp)
			if len(imp.Names) == 1 && imp.Names[0] == "*" && isModuleLevel(node) {
				result.StarImport = true
			}
		}
		return
	case "future_import_statement":
		// Compiler directive, not a module dependency.
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		s.walkImports(node.NamedChild(i), content, result)
	}
}

// extractImport handles "import a.b, c as d".
func (s *Scanner) extractImport(node *sitter.Node, content []byte) []discover.Import {
	var imports []discover.Import
	line := int(node.StartPoint().Row) + 1
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		var nameNode *sitter.Node
		switch child.Type() {
		case "dotted_name":
			nameNode = child
		case "aliased_import":
			nameNode = child.ChildByFieldName("name")
		}
		if nameNode == nil {
			continue
		}
		imports = append(imports, discover.Import{
			Module: dottedText(nameNode, content),
			Line:   line,
		})
	}
	return imports
}

// extractFromImport handles "from [.]*a.b import x, y as z" and "from a import *".
func (s *Scanner) extractFromImport(node *sitter.Node, content []byte) (discover.Import, bool) {
	moduleNode := node.ChildByFieldName("module_name")
	if moduleNode == nil {
		return discover.Import{}, false
	}

	imp := discover.Import{
		Names: make([]string, 0),
		Line:  int(node.StartPoint().Row) + 1,
	}
	switch moduleNode.Type() {
	case "relative_import":
		text := dottedText(moduleNode, content)
		trimmed := strings.TrimLeft(text, ".")
		imp.Level = len(text) - len(trimmed)
		imp.Module = trimmed
	default:
		imp.Module = dottedText(moduleNode, content)
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.StartByte() == moduleNode.StartByte() && child.EndByte() == moduleNode.EndByte() {
			continue
		}
		switch child.Type() {
		case "wildcard_import":
			imp.Names = append(imp.Names, "*")
		case "dotted_name":
			imp.Names = append(imp.Names, dottedText(child, content))
		case "aliased_import":
			if n := child.ChildByFieldName("name"); n != nil {
				imp.Names = append(imp.Names, dottedText(n, content))
			}
		}
	}
	return imp, true
}

// collectGlobals records names bound at module level. Compound statements
// are descended into; function and class bodies are not.
func (s *Scanner) collectGlobals(node *sitter.Node, content []byte, globals map[string]bool) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "function_definition", "class_definition":
			if name := child.ChildByFieldName("name"); name != nil {
				globals[name.Content(content)] = true
			}
		case "decorated_definition":
			if def := child.ChildByFieldName("definition"); def != nil {
				if name := def.ChildByFieldName("name"); name != nil {
					globals[name.Content(content)] = true
				}
			}
		case "expression_statement":
			s.collectAssignment(child, content, globals)
		case "import_statement":
			s.collectImportNames(child, content, globals)
		case "import_from_statement":
			s.collectFromImportNames(child, content, globals)
		case "if_statement", "try_statement", "with_statement", "for_statement",
			"while_statement", "block", "else_clause", "elif_clause",
			"except_clause", "finally_clause":
			s.collectGlobals(child, content, globals)
		}
	}
}

func (s *Scanner) collectAssignment(node *sitter.Node, content []byte, globals map[string]bool) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() != "assignment" && child.Type() != "augmented_assignment" {
			continue
		}
		left := child.ChildByFieldName("left")
		if left == nil {
			continue
		}
		collectIdentifiers(left, content, globals)
	}
}

func collectIdentifiers(node *sitter.Node, content []byte, globals map[string]bool) {
	switch node.Type() {
	case "identifier":
		globals[node.Content(content)] = true
	case "pattern_list", "tuple_pattern", "list_pattern":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			collectIdentifiers(node.NamedChild(i), content, globals)
		}
	}
}

func (s *Scanner) collectImportNames(node *sitter.Node, content []byte, globals map[string]bool) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			// "import a.b" binds "a"
			name := dottedText(child, content)
			if j := strings.IndexByte(name, '.'); j >= 0 {
				name = name[:j]
			}
			globals[name] = true
		case "aliased_import":
			if alias := child.ChildByFieldName("alias"); alias != nil {
				globals[alias.Content(content)] = true
			}
		}
	}
}

func (s *Scanner) collectFromImportNames(node *sitter.Node, content []byte, globals map[string]bool) {
	moduleNode := node.ChildByFieldName("module_name")
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if moduleNode != nil && child.StartByte() == moduleNode.StartByte() {
			continue
		}
		switch child.Type() {
		case "dotted_name":
			globals[dottedText(child, content)] = true
		case "aliased_import":
			if alias := child.ChildByFieldName("alias"); alias != nil {
				globals[alias.Content(content)] = true
			}
		}
	}
}

// isModuleLevel reports whether node sits outside any function or class.
func isModuleLevel(node *sitter.Node) bool {
	for p := node.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "function_definition", "class_definition":
			return false
		}
	}
	return true
}

// dottedText returns node text with any whitespace removed, so
// "a . b" and "a.b" are the same module.
func dottedText(node *sitter.Node, content []byte) string {
	return strings.Join(strings.Fields(node.Content(content)), "")
}
