package extract

import (
	"bytes"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	apperrors "github.com/FocuswithJustin/epubmirror/core/errors"
)

// cssLexer splits a stylesheet into just enough tokens to find references.
// Rules are tried in order; Char matches any single rune so lexing never
// fails on odd input, and an unterminated url( simply falls through to it.
var cssLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `/\*(?s:.*?)\*/`},
	{Name: "URL", Pattern: `[uU][rR][lL]\(\s*(?:"[^"]*"|'[^']*'|[^"'()\s]*)\s*\)`},
	{Name: "String", Pattern: `"(?:\\.|[^"\\\n])*"|'(?:\\.|[^'\\\n])*'`},
	{Name: "AtKeyword", Pattern: `@[-\w]+`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Ident", Pattern: `[-\w]+`},
	{Name: "Char", Pattern: `(?s:.)`},
})

var (
	urlToken       = cssLexer.Symbols()["URL"]
	stringToken    = cssLexer.Symbols()["String"]
	atKeywordToken = cssLexer.Symbols()["AtKeyword"]
	commentToken   = cssLexer.Symbols()["Comment"]
	spaceToken     = cssLexer.Symbols()["Whitespace"]
)

// StylesheetExtractor finds url(...) references and @import targets in CSS.
// Stylesheets are never rewritten.
type StylesheetExtractor struct{}

// Extract implements Extractor.
func (s *StylesheetExtractor) Extract(data []byte, assetURL string) (Result, error) {
	refs, err := CSSReferences(data)
	if err != nil {
		return Result{}, apperrors.NewParse("css", assetURL, err.Error(), err)
	}

	res := Result{Content: data}
	for _, ref := range refs {
		res.add(assetURL, ref)
	}
	return res, nil
}

// CSSReferences returns the raw (unresolved) references of a stylesheet in
// source order: every url(...) that is not inline data or a bare fragment,
// plus the string form of @import.
func CSSReferences(data []byte) ([]string, error) {
	lex, err := cssLexer.Lex("", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	tokens, err := lexer.ConsumeAll(lex)
	if err != nil {
		return nil, err
	}

	var refs []string
	importPending := false
	for _, tok := range tokens {
		switch tok.Type {
		case commentToken, spaceToken:
			continue
		case urlToken:
			if ref, ok := cssURLValue(tok.Value); ok {
				refs = append(refs, ref)
			}
		case stringToken:
			if importPending {
				if ref, ok := keepReference(unquote(tok.Value)); ok {
					refs = append(refs, ref)
				}
			}
		}
		importPending = tok.Type == atKeywordToken && strings.EqualFold(tok.Value, "@import")
	}
	return refs, nil
}

// cssURLValue extracts the reference from a url(...) token.
func cssURLValue(token string) (string, bool) {
	inner := token[len("url(") : len(token)-len(")")]
	return keepReference(unquote(strings.TrimSpace(inner)))
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// keepReference drops references that never name a fetchable asset.
func keepReference(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false
	}
	if len(ref) >= 5 && strings.EqualFold(ref[:5], "data:") {
		return "", false
	}
	return ref, true
}
