package main

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLINode is a JSON-friendly graph node.
type CLINode struct {
	Key           string `json:"key"`
	Kind          string `json:"kind"`
	Name          string `json:"name"`
	QualifiedName string `json:"qualified_name"`
	File          string `json:"file,omitempty"`
	StartLine     int    `json:"start_line,omitempty"`
	EndLine       int    `json:"end_line,omitempty"`
	Signature     string `json:"signature,omitempty"`
	Stub          bool   `json:"stub,omitempty"`
}

// CLICallSite is one caller or callee with its call location.
type CLICallSite struct {
	Symbol CLINode `json:"symbol"`
	File   string  `json:"file"`
	Line   int     `json:"line"`
}

// CLIModuleDep is one import relationship between a file and a module.
type CLIModuleDep struct {
	Module CLINode `json:"module"`
	File   string  `json:"file"`
	Line   int     `json:"line"`
}

// CLIOutlineClass is a class with its methods.
type CLIOutlineClass struct {
	Class   CLINode   `json:"class"`
	Methods []CLINode `json:"methods"`
}

// CLIOutline is the declaration structure of one file.
type CLIOutline struct {
	Path      string            `json:"path"`
	Language  string            `json:"language"`
	Module    *CLINode          `json:"module,omitempty"`
	Classes   []CLIOutlineClass `json:"classes"`
	Functions []CLINode         `json:"functions"`
}

// CLIRelated is a node reached by traversal, with its distance.
type CLIRelated struct {
	Symbol CLINode `json:"symbol"`
	Depth  int     `json:"depth"`
	Edge   string  `json:"edge,omitempty"`
}

// CLIHierarchy is the inheritance neighborhood of a class.
type CLIHierarchy struct {
	Root        CLINode      `json:"root"`
	Ancestors   []CLIRelated `json:"ancestors"`
	Descendants []CLIRelated `json:"descendants"`
}

// CLIPathStep is one hop on a dependency path. Edge names the
// relationship that connects this step to the previous one; it is
// empty on the first step.
type CLIPathStep struct {
	Symbol CLINode `json:"symbol"`
	Edge   string  `json:"edge,omitempty"`
}

// CLISemanticHit is one semantic search result.
type CLISemanticHit struct {
	SymbolKey string  `json:"symbol_key"`
	File      string  `json:"file"`
	Kind      string  `json:"kind"`
	Name      string  `json:"name"`
	Snippet   string  `json:"snippet,omitempty"`
	Score     float64 `json:"score"`
}

// CLIEvidence is one ranked answer fragment.
type CLIEvidence struct {
	SymbolKey string  `json:"symbol_key"`
	File      string  `json:"file,omitempty"`
	Kind      string  `json:"kind"`
	Name      string  `json:"name"`
	Reason    string  `json:"reason"`
	Score     float64 `json:"score"`
}

// CLIChannel reports one retrieval channel's contribution.
type CLIChannel struct {
	Ran        bool  `json:"ran"`
	Hits       int   `json:"hits"`
	Failed     bool  `json:"failed"`
	DurationMs int64 `json:"duration_ms"`
}

// CLIAnswer is the planner's response to one question.
type CLIAnswer struct {
	ID         string        `json:"id"`
	Question   string        `json:"question"`
	Route      string        `json:"route"`
	Degraded   bool          `json:"degraded,omitempty"`
	Evidence   []CLIEvidence `json:"evidence"`
	Structural CLIChannel    `json:"structural"`
	Semantic   CLIChannel    `json:"semantic"`
	DurationMs int64         `json:"duration_ms"`
}

// CLIFileError is one per-file indexing failure.
type CLIFileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// CLIReport summarizes one indexing run.
type CLIReport struct {
	RunID      string         `json:"run_id"`
	Scanned    int            `json:"scanned"`
	Indexed    int            `json:"indexed"`
	Skipped    int            `json:"skipped"`
	Deleted    int            `json:"deleted"`
	Embedded   int            `json:"embedded"`
	Errors     []CLIFileError `json:"errors,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// CLIStats summarizes everything currently indexed.
type CLIStats struct {
	Files           int            `json:"files"`
	Nodes           int            `json:"nodes"`
	Edges           int            `json:"edges"`
	Stubs           int            `json:"stubs"`
	EmbeddedSymbols int            `json:"embedded_symbols"`
	NodesByKind     map[string]int `json:"nodes_by_kind"`
	EdgesByKind     map[string]int `json:"edges_by_kind"`
	Languages       map[string]int `json:"languages"`
}
