// Package parser drives lexer tokens straight into an ir.Builder: there is
// no separate AST. Each grammar production below corresponds to one of
// original_source's parse_* functions, reshaped around the richer
// structured-block API ir.Builder exposes (AddConditional/AddFallthru/
// AddBranch/AddJoin/JoinWithTarget) in place of raw CFG node handles.
package parser

import (
	"fmt"

	"pl0c/internal/errors"
	"pl0c/internal/ir"
	"pl0c/internal/lexer"
	"pl0c/token"
)

// abort unwinds the recursive descent back to Parse once the first syntax
// error has been recorded; production code never needs to check an error
// return on every call, mirroring the panic-driven control flow
// original_source's match_token used (there it was a genuine Rust panic).
type abort struct{}

// Parser turns one source file into an ir.Program.
type Parser struct {
	filename string
	tokens   []token.Token
	pos      int

	b    *ir.Builder
	errs []errors.CompilerError

	// funcEntryLine maps a user function's name to the global line number
	// of the placeholder emitted as the very first instruction of its
	// entry block, so a call site anywhere after that point (including a
	// recursive call from within the function's own body) can resolve
	// its Jsr target without a forward-reference pass.
	funcEntryLine map[string]int

	// tracking and trackedVars support the while-loop header fixup: while
	// true, every variable read through a LookupVar in parseFactor is
	// recorded so parseWhileStatement can tell JoinWithTarget's phis apart
	// from unrelated merges and repoint the header's instructions at them.
	tracking    bool
	trackedVars map[string]ir.Value
}

// New returns a Parser over source, named filename for diagnostics.
func New(filename, source string) *Parser {
	lx := lexer.New(source)
	toks, scanErrs := lx.ScanTokens()

	p := &Parser{
		filename:      filename,
		tokens:        toks,
		b:             ir.NewBuilder(),
		funcEntryLine: map[string]int{},
	}
	for _, se := range scanErrs {
		p.errs = append(p.errs, errors.CompilerError{
			Level:    errors.Error,
			Code:     errors.CodeUnexpectedToken,
			Message:  se.Message,
			Position: errors.Position{Line: se.Line, Column: se.Column},
			Length:   1,
		})
	}
	return p
}

// Filename returns the source name this Parser was constructed with, for
// callers that build an error reporter after parsing.
func (p *Parser) Filename() string {
	return p.filename
}

// Parse consumes the whole token stream and returns the built program
// together with every diagnostic recorded along the way. A non-empty
// error slice means the returned program is incomplete and must not be
// handed to the rest of the pipeline.
func (p *Parser) Parse() (prog *ir.Program, errs []errors.CompilerError) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(abort); !ok {
				panic(r)
			}
		}
		errs = p.errs
	}()

	if len(p.errs) > 0 {
		// Lexing already failed; there is no reliable token stream to
		// drive a parse from.
		return nil, p.errs
	}

	p.parseComputation()
	return p.b.Program(), p.errs
}

// --- token stream helpers ---

func (p *Parser) cur() token.Token {
	if p.pos >= len(p.tokens) {
		return token.Token{Type: token.EOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekType() token.TokenType {
	return p.cur().Type
}

func (p *Parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

// match consumes the current token and reports true if it has type tt,
// otherwise leaves the stream untouched and reports false.
func (p *Parser) match(tt token.TokenType) bool {
	if p.peekType() == tt {
		p.advance()
		return true
	}
	return false
}

// expect consumes the current token, requiring it to have type tt. A
// mismatch is recorded as a diagnostic and aborts the parse.
func (p *Parser) expect(tt token.TokenType) token.Token {
	t := p.cur()
	if t.Type != tt {
		p.errorf(t, errors.CodeUnexpectedToken, "expected %s, found %q", tt, t.Literal)
	}
	return p.advance()
}

func (p *Parser) expectIdent() string {
	t := p.expect(token.IDENT)
	return t.Literal
}

func (p *Parser) errorf(t token.Token, code, format string, args ...interface{}) {
	p.errs = append(p.errs, errors.CompilerError{
		Level:    errors.Error,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Position: errors.Position{Line: t.Line, Column: t.Column},
		Length:   max(1, len(t.Literal)),
	})
	panic(abort{})
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// --- grammar ---

// parseComputation implements:
//
//	computation = "main" [varDecl] {funcDecl} "{" statSequence "}" "." .
func (p *Parser) parseComputation() {
	p.expect(token.MAIN)

	p.b.BeginFunction("main", true)
	mainFn := p.b.Program().Current

	if p.peekType() == token.VAR {
		p.parseVarDecl()
	}

	for p.peekType() == token.FUNCTION || p.peekType() == token.VOID {
		p.parseFuncDecl()
		p.b.Program().Current = mainFn
		p.b.SetCurrent(mainFn.EntryID)
	}

	p.expect(token.LBRACE)
	p.parseStatSequence()
	p.expect(token.RBRACE)
	p.expect(token.PERIOD)
	p.b.FinishFunction()
}

// parseVarDecl implements:
//
//	varDecl = "var" ident {"," ident} ";" .
func (p *Parser) parseVarDecl() {
	p.expect(token.VAR)
	p.b.DeclareVar(p.expectIdent())
	for p.match(token.COMMA) {
		p.b.DeclareVar(p.expectIdent())
	}
	p.expect(token.SEMICOLON)
}

var getParKinds = [3]ir.Kind{ir.KGetPar1, ir.KGetPar2, ir.KGetPar3}
var setParKinds = [3]ir.Kind{ir.KSetPar1, ir.KSetPar2, ir.KSetPar3}

// parseFuncDecl implements:
//
//	funcDecl = ["void"] "function" ident formalParam ";" funcBody ";" .
//	formalParam = "(" [ident {"," ident}] ")" .
//	funcBody = [varDecl] "{" [statSequence] "}" .
func (p *Parser) parseFuncDecl() {
	isVoid := p.match(token.VOID)
	p.expect(token.FUNCTION)
	name := p.expectIdent()

	p.b.BeginFunction(name, isVoid)
	// Every function gets a concrete first instruction, even with no
	// parameters, so a call site always has a resolvable entry line the
	// moment this function starts (including a recursive call from its
	// own body, parsed before the function is finished).
	entry := p.b.Emit(ir.Operation{Kind: ir.KEmpty})
	p.funcEntryLine[name] = int(entry)

	p.expect(token.LPAREN)
	paramCount := 0
	if p.peekType() != token.RPAREN {
		p.parseFormalParam(&paramCount)
		for p.match(token.COMMA) {
			p.parseFormalParam(&paramCount)
		}
	}
	p.expect(token.RPAREN)
	p.expect(token.SEMICOLON)

	if p.peekType() == token.VAR {
		p.parseVarDecl()
	}
	p.expect(token.LBRACE)
	if p.peekType() != token.RBRACE {
		p.parseStatSequence()
	}
	p.expect(token.RBRACE)
	p.expect(token.SEMICOLON)
	p.b.FinishFunction()
}

func (p *Parser) parseFormalParam(count *int) {
	nameTok := p.cur()
	name := p.expectIdent()
	if err := p.b.AddParameter(name); err != nil {
		p.errorf(nameTok, errors.CodeTooManyParameters, "%s", err)
	}
	idx := *count
	*count++
	v := p.b.Emit(ir.Operation{Kind: getParKinds[idx]})
	p.b.AssignVar(name, v)
}

// parseStatSequence implements:
//
//	statSequence = statement {";" statement} .
func (p *Parser) parseStatSequence() {
	p.parseStatement()
	for p.match(token.SEMICOLON) {
		if !p.startsStatement() {
			break
		}
		p.parseStatement()
	}
}

func (p *Parser) startsStatement() bool {
	switch p.peekType() {
	case token.LET, token.CALL, token.IF, token.WHILE, token.RETURN:
		return true
	}
	return false
}

func (p *Parser) parseStatement() {
	switch p.peekType() {
	case token.LET:
		p.parseAssignment()
	case token.CALL:
		p.parseCall(false)
	case token.IF:
		p.parseIfStatement()
	case token.WHILE:
		p.parseWhileStatement()
	case token.RETURN:
		p.parseReturnStatement()
	default:
		t := p.cur()
		p.errorf(t, errors.CodeUnexpectedToken, "expected a statement, found %q", t.Literal)
	}
}

// parseAssignment implements:
//
//	assignment = "let" ident "<-" expression .
func (p *Parser) parseAssignment() {
	p.expect(token.LET)
	nameTok := p.cur()
	name := p.expectIdent()
	p.expect(token.ASSIGN)
	v := p.parseExpression()

	if _, err := p.b.LookupVar(name); err != nil {
		if err == ir.ErrUndeclaredVar || isWrapped(err, ir.ErrUndeclaredVar) {
			p.errorf(nameTok, errors.CodeUndeclaredVar, "assignment to undeclared variable %q", name)
		}
		// ErrNotInitVar is expected here: we are about to give the
		// variable its first value.
	}
	p.b.AssignVar(name, v)
}

func isWrapped(err, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// parseReturnStatement implements:
//
//	returnStatement = "return" [expression] .
func (p *Parser) parseReturnStatement() {
	p.expect(token.RETURN)
	if p.startsExpression() {
		v := p.parseExpression()
		p.b.Emit(ir.Operation{Kind: ir.KRet, L: v})
		return
	}
	p.b.Emit(ir.Operation{Kind: ir.KRet})
}

func (p *Parser) startsExpression() bool {
	switch p.peekType() {
	case token.IDENT, token.INT, token.LPAREN, token.CALL, token.MINUS:
		return true
	}
	return false
}

// parseExpression implements:
//
//	expression = term {("+" | "-") term} .
func (p *Parser) parseExpression() ir.Value {
	v := p.parseTerm()
	for {
		switch p.peekType() {
		case token.PLUS:
			p.advance()
			v = p.b.Emit(ir.Operation{Kind: ir.KAdd, L: v, R: p.parseTerm()})
		case token.MINUS:
			p.advance()
			v = p.b.Emit(ir.Operation{Kind: ir.KSub, L: v, R: p.parseTerm()})
		default:
			return v
		}
	}
}

// parseTerm implements:
//
//	term = factor {("*" | "/") factor} .
func (p *Parser) parseTerm() ir.Value {
	v := p.parseFactor()
	for {
		switch p.peekType() {
		case token.STAR:
			p.advance()
			v = p.b.Emit(ir.Operation{Kind: ir.KMul, L: v, R: p.parseFactor()})
		case token.SLASH:
			p.advance()
			v = p.b.Emit(ir.Operation{Kind: ir.KDiv, L: v, R: p.parseFactor()})
		default:
			return v
		}
	}
}

// parseFactor implements:
//
//	factor = ident | number | "(" expression ")" | funcCall | "-" factor .
func (p *Parser) parseFactor() ir.Value {
	switch p.peekType() {
	case token.IDENT:
		nameTok := p.cur()
		name := p.expectIdent()
		v, err := p.b.LookupVar(name)
		if err != nil {
			code := errors.CodeUndeclaredVar
			if isWrapped(err, ir.ErrNotInitVar) {
				code = errors.CodeUninitializedVar
			}
			p.errorf(nameTok, code, "%s: %s", describeVarErr(err), name)
		}
		if p.tracking {
			p.trackedVars[name] = v
		}
		return v
	case token.INT:
		t := p.advance()
		return p.b.GetConstant(parseIntLiteral(t.Literal))
	case token.MINUS:
		p.advance()
		zero := p.b.GetConstant(0)
		return p.b.Emit(ir.Operation{Kind: ir.KSub, L: zero, R: p.parseFactor()})
	case token.LPAREN:
		p.advance()
		v := p.parseExpression()
		p.expect(token.RPAREN)
		return v
	case token.CALL:
		return p.parseCall(true)
	default:
		t := p.cur()
		p.errorf(t, errors.CodeUnexpectedToken, "expected an identifier, a number, '(' or 'call', found %q", t.Literal)
		return 0
	}
}

func describeVarErr(err error) string {
	if isWrapped(err, ir.ErrNotInitVar) {
		return "use of uninitialized variable"
	}
	return "assignment to undeclared variable"
}

func parseIntLiteral(lit string) int {
	n := 0
	for _, c := range lit {
		n = n*10 + int(c-'0')
	}
	return n
}

// branchKindFor implements get_branch_type: a relational operator's
// branch-on-true condition is realized by inverting it into the branch
// that skips the guarded arm.
func branchKindFor(op token.TokenType) ir.Kind {
	switch op {
	case token.EQ:
		return ir.KBne
	case token.NOT_EQ:
		return ir.KBeq
	case token.GT:
		return ir.KBle
	case token.GE:
		return ir.KBlt
	case token.LT:
		return ir.KBge
	case token.LE:
		return ir.KBgt
	}
	return ir.KBne
}

func isRelOp(tt token.TokenType) bool {
	switch tt {
	case token.EQ, token.NOT_EQ, token.LT, token.LE, token.GT, token.GE:
		return true
	}
	return false
}

// parseRelation implements:
//
//	relation = expression relOp expression .
//
// It returns the Cmp's value together with the source operator, so the
// caller can choose the inverted branch kind via branchKindFor.
func (p *Parser) parseRelation() (ir.Value, token.TokenType) {
	l := p.parseExpression()
	t := p.cur()
	if !isRelOp(t.Type) {
		p.errorf(t, errors.CodeUnexpectedToken, "expected a relational operator, found %q", t.Literal)
	}
	p.advance()
	r := p.parseExpression()
	cmp := p.b.Emit(ir.Operation{Kind: ir.KCmp, L: l, R: r})
	return cmp, t.Type
}

// parseIfStatement implements:
//
//	ifStatement = "if" relation "then" statSequence ["else" statSequence] "fi" .
func (p *Parser) parseIfStatement() {
	p.expect(token.IF)
	cond := p.b.AddConditional()
	cmp, op := p.parseRelation()
	branchLine := int(p.b.Emit(ir.Operation{Kind: branchKindFor(op), L: cmp, BB: -1}))
	p.expect(token.THEN)

	p.b.AddFallthru()
	p.parseStatSequence()
	thenTail := p.b.CurrentBlock()

	var elseHead, elseTail int
	if p.match(token.ELSE) {
		elseHead = p.b.AddBranch(cond)
		p.parseStatSequence()
		elseTail = p.b.CurrentBlock()
	} else {
		elseHead = p.b.AddBranch(cond)
		p.b.Emit(ir.Operation{Kind: ir.KEmpty})
		elseTail = elseHead
	}
	p.expect(token.FI)

	p.b.AddJoin(thenTail, elseTail)
	if err := p.b.ModifyInstruction(cond, branchLine, ir.Operation{Kind: branchKindFor(op), L: cmp, BB: elseHead}); err != nil {
		panic(err)
	}
}

// parseWhileStatement implements:
//
//	whileStatement = "while" relation "do" statSequence "od" .
//
// The loop condition is parsed once against the pre-loop variable
// values; once the body's effect on any loop-carried variable is known
// (JoinWithTarget's returned phis), every header instruction that read
// the stale value is repointed at the phi, so the second and later
// iterations test the merged value instead of the first one.
func (p *Parser) parseWhileStatement() {
	p.expect(token.WHILE)
	header := p.b.AddConditional()

	p.beginTrackingVars()
	cmp, op := p.parseRelation()
	preLoop := p.endTrackingVars()

	branchLine := int(p.b.Emit(ir.Operation{Kind: branchKindFor(op), L: cmp, BB: -1}))
	p.expect(token.DO)

	p.b.AddFallthru()
	p.parseStatSequence()
	bodyTail := p.b.CurrentBlock()
	p.expect(token.OD)

	p.b.EmitIn(bodyTail, ir.Operation{Kind: ir.KBra, BB: header})
	phis := p.b.JoinWithTarget(bodyTail, header)
	for _, phi := range phis {
		if old, ok := preLoop[phi.Name]; ok {
			p.b.ReplaceValueInBlock(header, old, ir.Value(phi.Line))
		}
	}

	follow := p.b.AddFollow(header)
	if err := p.b.ModifyInstruction(header, branchLine, ir.Operation{Kind: branchKindFor(op), L: cmp, BB: follow}); err != nil {
		panic(err)
	}
}

func (p *Parser) beginTrackingVars() {
	p.tracking = true
	p.trackedVars = map[string]ir.Value{}
}

func (p *Parser) endTrackingVars() map[string]ir.Value {
	p.tracking = false
	vars := p.trackedVars
	p.trackedVars = nil
	return vars
}

// parseCall implements:
//
//	funcCall = "call" ident "(" [expression {"," expression}] ")" .
//
// wantValue distinguishes a call used as a statement (its result, if
// any, is discarded) from one used in expression position (its result
// must exist). InputNum/OutputNum/OutputNewLine are runtime intrinsics
// rather than compiled functions: they lower directly to Read/Write/
// WriteNL instead of a Jsr, since ir.NewProgram stubs them with no
// blocks to call into.
func (p *Parser) parseCall(wantValue bool) ir.Value {
	callTok := p.cur()
	p.expect(token.CALL)
	nameTok := p.cur()
	name := p.expectIdent()
	p.expect(token.LPAREN)

	var args []ir.Value
	if p.peekType() != token.RPAREN {
		args = append(args, p.parseExpression())
		for p.match(token.COMMA) {
			args = append(args, p.parseExpression())
		}
	}
	p.expect(token.RPAREN)

	switch name {
	case "InputNum":
		if len(args) != 0 {
			p.errorf(nameTok, errors.CodeArityMismatch, "call to %q passes %d arguments, expected 0", name, len(args))
		}
		return p.b.Emit(ir.Operation{Kind: ir.KRead})
	case "OutputNum":
		if len(args) != 1 {
			p.errorf(nameTok, errors.CodeArityMismatch, "call to %q passes %d arguments, expected 1", name, len(args))
		}
		p.b.Emit(ir.Operation{Kind: ir.KWrite, L: p.asRegisterResident(args[0])})
		if wantValue {
			p.errorf(callTok, errors.CodeVoidInExpression, "call to void function %q used in an expression", name)
		}
		return 0
	case "OutputNewLine":
		if len(args) != 0 {
			p.errorf(nameTok, errors.CodeArityMismatch, "call to %q passes %d arguments, expected 0", name, len(args))
		}
		p.b.Emit(ir.Operation{Kind: ir.KWriteNL})
		if wantValue {
			p.errorf(callTok, errors.CodeVoidInExpression, "call to void function %q used in an expression", name)
		}
		return 0
	}

	target, ok := p.b.Program().Functions[name]
	if !ok {
		p.errorf(nameTok, errors.CodeUndeclaredVar, "call to undeclared function %q", name)
	}
	if len(args) != len(target.Params) {
		p.errorf(nameTok, errors.CodeArityMismatch, "call to %q passes %d arguments, expected %d", name, len(args), len(target.Params))
	}
	for i, a := range args {
		p.b.Emit(ir.Operation{Kind: setParKinds[i], L: a})
	}
	entryLine, ok := p.funcEntryLine[name]
	if !ok {
		p.errorf(nameTok, errors.CodeUndeclaredVar, "call to %q before it is fully declared", name)
	}
	v := p.b.Emit(ir.Operation{Kind: ir.KJsr, L: ir.Value(entryLine)})

	if target.IsVoid {
		if wantValue {
			p.errorf(callTok, errors.CodeVoidInExpression, "call to void function %q used in an expression", name)
		}
		return 0
	}
	if !wantValue {
		p.errorf(callTok, errors.CodeNonVoidAsStatement, "result of call to %q is not used", name)
	}
	return v
}

// asRegisterResident forces a write operand through an arithmetic emit
// when it names a bare constant, since codegen's Write lowering assumes
// every operand is already register-resident.
func (p *Parser) asRegisterResident(v ir.Value) ir.Value {
	if v > 0 {
		return v
	}
	return p.b.Emit(ir.Operation{Kind: ir.KAdd, L: v, R: p.b.GetConstant(0)})
}
