package parse

// Tree is the language-neutral symbol tree produced by parsing one source
// file. It records the file's imports, top-level classes and functions, and
// the call references found inside each function body. Nested functions are
// not collected; methods appear under their owning class only.
type Tree struct {
	// Path is the path the file was parsed as, relative to the project root.
	Path     string
	Language string

	// Doc is the module-level docstring or leading comment, if any.
	Doc string

	Imports   []Import
	Classes   []Class
	Functions []Function
}

// Import records a single imported module reference. A statement importing
// several modules produces one Import per module.
type Import struct {
	// Module is the dotted module path or raw specifier as written, with
	// relative prefixes preserved (e.g. "..pkg.helpers", "./util").
	Module string

	// Name is the imported member for from-style imports, empty otherwise.
	Name  string
	Alias string
	Line  int
}

// Class records a class declaration with its methods and raw base-class
// references. Bases are unresolved names exactly as written.
type Class struct {
	Name       string
	Doc        string
	Bases      []string
	Decorators []string
	StartLine  int
	EndLine    int
	Methods    []Function
}

// Function records a function or method declaration. For methods, Name is
// the bare method name; qualification against the owning class happens
// during extraction.
type Function struct {
	Name       string
	Signature  string
	Doc        string
	Decorators []string
	Async      bool
	StartLine  int
	EndLine    int

	// Calls are the call references found anywhere in the body, including
	// nested scopes. Names are best-effort static reads, not resolutions.
	Calls []Call
}

// Call is an unresolved call reference: the bare identifier or final
// attribute of the callee expression.
type Call struct {
	Name string

	// Receiver is "self" or "this" for instance calls on the enclosing
	// object, empty for bare calls, and the receiver text otherwise.
	Receiver string
	Line     int
}

// QualifiedName returns the name of a method qualified by its class, or the
// bare name for a standalone function.
func QualifiedName(className, name string) string {
	if className == "" {
		return name
	}
	return className + "." + name
}
