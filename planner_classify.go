package strata

import (
	"strings"
	"unicode"

	"github.com/ayushkumar29/strata/internal/store"
)

// relation maps a relationship verb to the edges the structural
// channel should walk and the direction to walk them.
type relation struct {
	verb  string
	kinds []string
	dir   Direction
	both  bool
}

// intent is the classifier's reading of one question: the route, the
// detected relation (if any), the tokens that are unmistakably symbol
// names, and plain words that might still name a symbol.
type intent struct {
	question   string
	route      Route
	relation   *relation
	symbols    []string
	candidates []string
}

// relationVerbs is the deterministic verb table. The first matching
// token decides the relation.
var relationVerbs = map[string]relation{
	"calls":    {verb: "calls", kinds: []string{store.EdgeCalls}, dir: DirectionIn},
	"call":     {verb: "calls", kinds: []string{store.EdgeCalls}, dir: DirectionIn},
	"called":   {verb: "calls", kinds: []string{store.EdgeCalls}, dir: DirectionIn},
	"calling":  {verb: "calls", kinds: []string{store.EdgeCalls}, dir: DirectionIn},
	"invokes":  {verb: "calls", kinds: []string{store.EdgeCalls}, dir: DirectionIn},
	"invoke":   {verb: "calls", kinds: []string{store.EdgeCalls}, dir: DirectionIn},
	"invoked":  {verb: "calls", kinds: []string{store.EdgeCalls}, dir: DirectionIn},
	"callers":  {verb: "calls", kinds: []string{store.EdgeCalls}, dir: DirectionIn},
	"caller":   {verb: "calls", kinds: []string{store.EdgeCalls}, dir: DirectionIn},
	"callees":  {verb: "calls", kinds: []string{store.EdgeCalls}, dir: DirectionOut},
	"callee":   {verb: "calls", kinds: []string{store.EdgeCalls}, dir: DirectionOut},
	"uses":     {verb: "calls", kinds: []string{store.EdgeCalls}, dir: DirectionIn},
	"use":      {verb: "calls", kinds: []string{store.EdgeCalls}, dir: DirectionIn},
	"used":     {verb: "calls", kinds: []string{store.EdgeCalls}, dir: DirectionIn},
	"using":    {verb: "calls", kinds: []string{store.EdgeCalls}, dir: DirectionIn},

	"imports":      {verb: "imports", kinds: []string{store.EdgeImports}, dir: DirectionIn},
	"import":       {verb: "imports", kinds: []string{store.EdgeImports}, dir: DirectionIn},
	"imported":     {verb: "imports", kinds: []string{store.EdgeImports}, dir: DirectionIn},
	"importers":    {verb: "imports", kinds: []string{store.EdgeImports}, dir: DirectionIn},
	"depends":      {verb: "imports", kinds: []string{store.EdgeImports}, dir: DirectionOut},
	"dependencies": {verb: "imports", kinds: []string{store.EdgeImports}, dir: DirectionOut},
	"requires":     {verb: "imports", kinds: []string{store.EdgeImports}, dir: DirectionIn},

	"inherits":     {verb: "inherits", kinds: []string{store.EdgeInheritsFrom}, both: true},
	"inherit":      {verb: "inherits", kinds: []string{store.EdgeInheritsFrom}, both: true},
	"extends":      {verb: "inherits", kinds: []string{store.EdgeInheritsFrom}, both: true},
	"extend":       {verb: "inherits", kinds: []string{store.EdgeInheritsFrom}, both: true},
	"subclass":     {verb: "inherits", kinds: []string{store.EdgeInheritsFrom}, dir: DirectionIn},
	"subclasses":   {verb: "inherits", kinds: []string{store.EdgeInheritsFrom}, dir: DirectionIn},
	"superclass":   {verb: "inherits", kinds: []string{store.EdgeInheritsFrom}, dir: DirectionOut},
	"superclasses": {verb: "inherits", kinds: []string{store.EdgeInheritsFrom}, dir: DirectionOut},
	"hierarchy":    {verb: "inherits", kinds: []string{store.EdgeInheritsFrom}, both: true},
	"derived":      {verb: "inherits", kinds: []string{store.EdgeInheritsFrom}, dir: DirectionIn},
	"derives":      {verb: "inherits", kinds: []string{store.EdgeInheritsFrom}, both: true},

	"contains":  {verb: "contains", kinds: []string{store.EdgeContains, store.EdgeDeclares}, dir: DirectionOut},
	"methods":   {verb: "contains", kinds: []string{store.EdgeContains, store.EdgeDeclares}, dir: DirectionOut},
	"declares":  {verb: "declares", kinds: []string{store.EdgeDeclares, store.EdgeContains}, dir: DirectionOut},
	"declared":  {verb: "declares", kinds: []string{store.EdgeDeclares, store.EdgeContains}, dir: DirectionIn},
	"defines":   {verb: "declares", kinds: []string{store.EdgeDeclares, store.EdgeContains}, dir: DirectionOut},
	"defined":   {verb: "declares", kinds: []string{store.EdgeDeclares, store.EdgeContains}, dir: DirectionIn},
	"structure": {verb: "declares", kinds: []string{store.EdgeDeclares, store.EdgeContains}, dir: DirectionOut},
}

// stopwords are question scaffolding, never symbol candidates.
var stopwords = map[string]bool{
	"a": true, "all": true, "an": true, "and": true, "any": true,
	"are": true, "by": true, "code": true, "did": true, "do": true,
	"does": true, "every": true, "find": true, "for": true, "from": true,
	"function": true, "functions": true, "get": true, "give": true,
	"how": true, "i": true, "in": true, "is": true, "it": true,
	"list": true, "me": true, "of": true, "on": true, "or": true,
	"show": true, "that": true, "the": true, "their": true, "there": true,
	"this": true, "to": true, "what": true, "when": true, "where": true,
	"which": true, "who": true, "whom": true, "why": true, "with": true,
	"class": true, "classes": true, "method": true, "file": true,
	"files": true, "module": true, "modules": true, "symbol": true,
	"symbols": true,
}

// classify applies the routing rules to one question. A relationship
// verb together with an explicit symbol token routes structurally;
// purely descriptive phrasing routes semantically; anything in between
// is ambiguous and keeps both channels alive.
func classify(question string) intent {
	in := intent{question: question}

	sawDoes := false
	for _, raw := range strings.Fields(question) {
		tok, explicit := cleanToken(raw)
		if tok == "" {
			continue
		}
		lower := strings.ToLower(tok)

		if lower == "does" || lower == "do" || lower == "did" {
			sawDoes = true
			continue
		}
		if rel, ok := relationVerbs[lower]; ok && !explicit {
			if in.relation == nil {
				// "what does X call" walks the opposite way from
				// "what calls X".
				if sawDoes && !rel.both {
					rel.dir = flip(rel.dir)
				}
				in.relation = &rel
			}
			continue
		}

		switch {
		case explicit || looksLikeSymbol(tok):
			in.symbols = append(in.symbols, tok)
		case !stopwords[lower]:
			in.candidates = append(in.candidates, tok)
		}
	}

	switch {
	case in.relation != nil && len(in.symbols) > 0:
		in.route = RouteStructural
	case in.relation == nil && len(in.symbols) == 0:
		in.route = RouteSemantic
	default:
		in.route = RouteHybrid
	}
	return in
}

func flip(d Direction) Direction {
	if d == DirectionIn {
		return DirectionOut
	}
	return DirectionIn
}

// cleanToken strips sentence punctuation from a word. The second
// return is true when the token was quoted, backticked, or written
// with call parentheses -- all explicit symbol markers.
func cleanToken(raw string) (string, bool) {
	tok := strings.TrimFunc(raw, func(r rune) bool {
		return r == '?' || r == '!' || r == ',' || r == ';' || r == ':' || r == '.'
	})
	explicit := false
	for _, q := range []string{"`", `"`, "'"} {
		if strings.HasPrefix(tok, q) && strings.HasSuffix(tok, q) && len(tok) >= 2*len(q) {
			tok = tok[len(q) : len(tok)-len(q)]
			explicit = true
			break
		}
	}
	if strings.HasSuffix(tok, "()") {
		tok = strings.TrimSuffix(tok, "()")
		explicit = true
	}
	return tok, explicit
}

// looksLikeSymbol reports whether a token is unmistakably a code
// identifier: snake_case, dotted, slashed, or mixed-case. A plain
// capitalized word does not count; sentence-initial words would drown
// the classifier in false positives.
func looksLikeSymbol(tok string) bool {
	if strings.Contains(tok, "_") {
		return true
	}
	if strings.Contains(tok, ".") || strings.Contains(tok, "/") {
		return true
	}

	hasLower := false
	upperAfterFirst := false
	for i, r := range tok {
		if unicode.IsLower(r) {
			hasLower = true
		}
		if i > 0 && unicode.IsUpper(r) {
			upperAfterFirst = true
		}
	}
	return hasLower && upperAfterFirst
}
