// Package command resolves ${...} placeholders in build-task command
// templates against a task's environment, variables and files.
//
// Template syntax:
//
//	$$            a literal '$'
//	${NAME}       the value bound to NAME
//	${NAME CODE}  NAME followed by accessors, e.g. ${SRC[1]} or ${TGT[0].name}
package command

import (
	"regexp"
	"strings"

	"github.com/phillarmonic/buildcmd/internal/errors"
)

var placeholderRegex = regexp.MustCompile(`\$\$|\$\{(\w+)(.*?)\}`)

// TokenKind identifies a scanned piece of template
type TokenKind int

const (
	// Literal is text copied unchanged
	Literal TokenKind = iota
	// Escape is "$$", rendered as a single '$'
	Escape
	// Ref is a ${...} placeholder reference
	Ref
)

// Token is one piece of a scanned template
type Token struct {
	Kind   TokenKind
	Text   string // raw template text of the token
	Name   string // Ref only: the bound symbol
	Code   string // Ref only: trailing accessor code, may be empty
	Offset int    // byte offset of Text in the template
}

// Scan splits a template into literals, escapes and references. It does not
// evaluate anything. A "${" that does not form a valid reference is an error.
func Scan(template string) ([]Token, error) {
	matches := placeholderRegex.FindAllStringSubmatchIndex(template, -1)
	tokens := make([]Token, 0, 2*len(matches)+1)

	pos := 0
	for _, m := range matches {
		if m[0] > pos {
			lit, err := literal(template, pos, m[0])
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, lit)
		}

		tok := Token{Text: template[m[0]:m[1]], Offset: m[0]}
		if m[2] < 0 {
			tok.Kind = Escape
		} else {
			tok.Kind = Ref
			tok.Name = template[m[2]:m[3]]
			tok.Code = template[m[4]:m[5]]
		}
		tokens = append(tokens, tok)
		pos = m[1]
	}

	if pos < len(template) {
		lit, err := literal(template, pos, len(template))
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, lit)
	}

	return tokens, nil
}

func literal(template string, start, end int) (Token, error) {
	text := template[start:end]
	if i := strings.Index(text, "${"); i >= 0 {
		return Token{}, errors.NewTemplateError("unterminated or malformed ${...} reference", template, start+i)
	}
	return Token{Kind: Literal, Text: text, Offset: start}, nil
}
