package value

import "strings"

// ErrorKind is the canonical set of spreadsheet error codes.
type ErrorKind uint8

const (
	ErrNull ErrorKind = iota // #NULL! - no cells in common between ranges
	ErrDiv0                  // #DIV/0! - division by zero
	ErrVal                   // #VALUE! - wrong type of argument or operand
	ErrRef                   // #REF! - invalid cell reference
	ErrName                  // #NAME? - unrecognized function or range name
	ErrNum                   // #NUM! - number out of range
	ErrNA                    // #N/A - value not available
	ErrCirc                  // #CIRC! - circular reference
	ErrSpill                 // #SPILL! - array result blocked by occupied cells
	ErrGeneric               // #ERROR! - anything else
)

var errorDisplay = map[ErrorKind]string{
	ErrNull:    "#NULL!",
	ErrDiv0:    "#DIV/0!",
	ErrVal:     "#VALUE!",
	ErrRef:     "#REF!",
	ErrName:    "#NAME?",
	ErrNum:     "#NUM!",
	ErrNA:      "#N/A",
	ErrCirc:    "#CIRC!",
	ErrSpill:   "#SPILL!",
	ErrGeneric: "#ERROR!",
}

var errorLabel = map[ErrorKind]string{
	ErrNull:    "Null",
	ErrDiv0:    "Div0",
	ErrVal:     "Value",
	ErrRef:     "Ref",
	ErrName:    "Name",
	ErrNum:     "Num",
	ErrNA:      "NA",
	ErrCirc:    "Circ",
	ErrSpill:   "Spill",
	ErrGeneric: "Error",
}

// String renders the error code exactly as a spreadsheet displays it.
func (k ErrorKind) String() string {
	if s, ok := errorDisplay[k]; ok {
		return s
	}
	return "#ERROR!"
}

// Label is the short symbolic name used when an error crosses the engine
// boundary as structured data ("Value", "Name", "Div0", ...).
func (k ErrorKind) Label() string {
	if s, ok := errorLabel[k]; ok {
		return s
	}
	return "Error"
}

// ParseErrorKind recognizes an error literal as it appears in formula text.
func ParseErrorKind(s string) (ErrorKind, bool) {
	needle := strings.ToUpper(strings.TrimSpace(s))
	for k, display := range errorDisplay {
		if display == needle {
			return k, true
		}
	}
	return ErrGeneric, false
}

// ErrValue is the error payload of an error-kind Value. It also satisfies
// the error interface so it can cross API boundaries as a Go error.
type ErrValue struct {
	Kind    ErrorKind
	Message string
}

func (e *ErrValue) Error() string { return e.Display() }

// Display renders the message when present, otherwise the error code.
func (e *ErrValue) Display() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

// SingleLine collapses a message onto one line: embedded newlines become
// spaces, surrounding whitespace is trimmed.
func SingleLine(msg string) string {
	if !strings.ContainsAny(msg, "\r\n") {
		return strings.TrimSpace(msg)
	}
	fields := strings.FieldsFunc(msg, func(r rune) bool { return r == '\r' || r == '\n' })
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}
