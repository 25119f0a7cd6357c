package manifest

import (
	"fmt"
	"strings"
)

const (
	parseErrorTemplateConstant      = "%s: document %d: %v"
	parseErrorsSeparatorConstant    = "; "
	parseErrorsEmptyMessageConstant = "no parse errors"
)

// ParseError reports a YAML segment that could not be decoded.
type ParseError struct {
	Path         string
	SegmentIndex int
	Cause        error
}

func (parseError *ParseError) Error() string {
	return fmt.Sprintf(parseErrorTemplateConstant, parseError.Path, parseError.SegmentIndex, parseError.Cause)
}

func (parseError *ParseError) Unwrap() error {
	return parseError.Cause
}

// ParseErrors collects the segment failures of a single file.
type ParseErrors []*ParseError

func (parseErrors ParseErrors) Error() string {
	if len(parseErrors) == 0 {
		return parseErrorsEmptyMessageConstant
	}
	messages := make([]string, 0, len(parseErrors))
	for _, parseError := range parseErrors {
		messages = append(messages, parseError.Error())
	}
	return strings.Join(messages, parseErrorsSeparatorConstant)
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (parseErrors ParseErrors) Unwrap() []error {
	unwrapped := make([]error, 0, len(parseErrors))
	for _, parseError := range parseErrors {
		unwrapped = append(unwrapped, parseError)
	}
	return unwrapped
}
