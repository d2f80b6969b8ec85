package errors

// Error codes for every parse/build-time failure mode this core can
// surface, one per class of mistake a PL/0 program can make.
const (
	CodeUnexpectedToken        = "E0001"
	CodeUndeclaredVar          = "E0002"
	CodeUninitializedVar       = "E0003"
	CodeVoidInExpression       = "E0004"
	CodeNonVoidAsStatement     = "E0005"
	CodeTooManyParameters      = "E0006"
	CodeArityMismatch          = "E0007"
	CodeBranchToEmptyBlock     = "E0008"
	CodeNotColorable           = "E0009"
	CodeMalformedEncodeOperand = "E0010"
)
