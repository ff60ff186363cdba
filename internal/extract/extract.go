// Package extract parses buildable source files out of model replies.
//
// A file is a marker line followed immediately by a fenced block:
//
//	//FILENAME: Counter.tsx
//	```tsx
//	export const Counter = () => null
//	```
//
// Fences without a marker, or with a language tag outside ts/tsx/typescript,
// are treated as illustrative and skipped.
package extract

import (
	"regexp"

	"github.com/ashureev/codebot/internal/domain"
)

const fence = "```"

var (
	fileBlockPattern = regexp.MustCompile(
		`(?m)^[ \t]*//[ \t]*FILENAME:[ \t]*([A-Za-z0-9_]+\.(?:tsx|ts))[ \t]*\r?\n` +
			fence + `(tsx|ts|typescript)[ \t]*\r?\n` +
			`(?:([\s\S]*?)\r?\n)??` + fence)

	filenamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+\.(?:tsx|ts)$`)
)

// Files returns the files found in text, in the order their markers appear.
// It returns nil when text contains no well-formed file blocks.
func Files(text string) []domain.ExtractedFile {
	matches := fileBlockPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	files := make([]domain.ExtractedFile, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if !ValidFilename(name) {
			continue
		}
		files = append(files, domain.ExtractedFile{
			Filename: name,
			Content:  m[3],
		})
	}
	if len(files) == 0 {
		return nil
	}
	return files
}

// ValidFilename reports whether name is a single path segment ending in .ts or .tsx.
// Anything else must never reach the file system.
func ValidFilename(name string) bool {
	return filenamePattern.MatchString(name)
}
