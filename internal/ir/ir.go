package ir

// NewProgram returns an empty Program pre-populated with the three
// predefined runtime call stubs (InputNum, OutputNum, OutputNewLine).
func NewProgram() *Program {
	return newProgram()
}
