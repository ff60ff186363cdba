package domain

import "strings"

// Source names the verification tool that produced a diagnostic.
type Source string

const (
	SourceTypeScript Source = "TYPESCRIPT"
	SourceESLint     Source = "ESLINT"
	SourcePrettier   Source = "PRETTIER"
)

// ExtractedFile is a candidate source file parsed out of an assistant reply.
type ExtractedFile struct {
	Filename string `json:"filename"`
	Content  string `json:"code"`
}

// Diagnostic is one problem reported by a verification tool run.
// Exactly one of Message and SystemError is set.
type Diagnostic struct {
	Source      Source `json:"type"`
	Message     string `json:"error,omitempty"`
	SystemError string `json:"systemError,omitempty"`
}

// IsSystemError reports whether the tool itself failed to run.
func (d Diagnostic) IsSystemError() bool {
	return d.SystemError != ""
}

// Text returns whichever of Message or SystemError is populated.
func (d Diagnostic) Text() string {
	if d.SystemError != "" {
		return d.SystemError
	}
	return d.Message
}

// String renders the diagnostic for prompts and notifications.
func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(d.Source))
	b.WriteString("] ")
	if d.IsSystemError() {
		b.WriteString("tool failed to run: ")
	}
	b.WriteString(strings.TrimSpace(d.Text()))
	return b.String()
}

// HasSystemErrors reports whether any diagnostic is an invocation failure.
func HasSystemErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.IsSystemError() {
			return true
		}
	}
	return false
}

// JoinDiagnostics renders diagnostics separated by blank lines.
func JoinDiagnostics(diags []Diagnostic) string {
	parts := make([]string, 0, len(diags))
	for _, d := range diags {
		parts = append(parts, d.String())
	}
	return strings.Join(parts, "\n\n")
}
