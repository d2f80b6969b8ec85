package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// PL0Lexer tokenizes PL/0 source for the formatter's declarative grammar.
// It mirrors internal/lexer's token classes but is expressed as participle
// lexer rules, since this parse tree exists only to drive the printer
// rather than the compiler's core pipeline.
var PL0Lexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Comment", `//[^\n]*`, nil},
		{"Ident", `[a-zA-Z][a-zA-Z0-9_]*`, nil},
		{"Integer", `[0-9]+`, nil},
		{"Operator", `(<-|==|!=|<=|>=|[<>+\-*/])`, nil},
		{"Punctuation", `[(){},;.]`, nil},
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
