package report

import (
	"io"
	"strings"

	"github.com/temirov/flux-validator/internal/tree"
)

const lineTerminatorConstant = "\n"

// Section is a titled text tree written to the operator.
type Section struct {
	Header string
	Nodes  []tree.Node
	// EmptyMessage replaces the tree when Nodes is empty.
	EmptyMessage string
	// Optional sections are omitted entirely when Nodes is empty.
	Optional bool
}

// IsEmpty reports whether the section has no tree nodes.
func (section Section) IsEmpty() bool {
	return len(section.Nodes) == 0
}

// Lines renders the section. Optional empty sections render nothing.
func (section Section) Lines() []string {
	if section.IsEmpty() {
		if section.Optional {
			return nil
		}
		if len(section.EmptyMessage) > 0 {
			return []string{section.Header, section.EmptyMessage}
		}
	}
	return tree.Render(section.Header, section.Nodes)
}

// String renders the section as newline terminated text.
func (section Section) String() string {
	lines := section.Lines()
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, lineTerminatorConstant) + lineTerminatorConstant
}

// WriteTo writes the rendered section.
func (section Section) WriteTo(writer io.Writer) (int64, error) {
	rendered := section.String()
	if len(rendered) == 0 {
		return 0, nil
	}
	bytesWritten, writeError := io.WriteString(writer, rendered)
	return int64(bytesWritten), writeError
}

// WriteSections writes every non-omitted section, separating consecutive sections with a blank line.
func WriteSections(writer io.Writer, sections ...Section) error {
	wroteSection := false
	for _, section := range sections {
		if section.Optional && section.IsEmpty() {
			continue
		}
		if wroteSection {
			if _, separatorError := io.WriteString(writer, lineTerminatorConstant); separatorError != nil {
				return separatorError
			}
		}
		if _, writeError := section.WriteTo(writer); writeError != nil {
			return writeError
		}
		wroteSection = true
	}
	return nil
}
