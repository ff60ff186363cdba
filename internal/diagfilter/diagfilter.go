// Package diagfilter drops type-checker diagnostics that are artifacts of the
// verification sandbox rather than defects in generated code.
//
// The sandbox never installs the packages a reply imports, so every
// "Cannot find module 'left-pad'" line is expected. Relative imports are kept:
// a missing sibling file is a real defect the model can fix.
package diagfilter

import (
	"regexp"
	"strings"
)

// missingModulePattern matches tsc's "cannot find module" category in both the
// plain `file(1,2): error TS2307:` and pretty `file:1:2 - error TS2307:` forms.
var missingModulePattern = regexp.MustCompile(`\bTS(?:2307|2792):\s*Cannot find module ['"]([^'"]+)['"]`)

// Filter removes noise lines from raw tsc output and drops blank lines.
// Remaining lines are returned verbatim, in order, joined by "\n".
func Filter(raw string) string {
	lines := strings.Split(raw, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if IsNoise(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// IsNoise reports whether line is an unresolved third-party import diagnostic.
func IsNoise(line string) bool {
	m := missingModulePattern.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	return isThirdParty(m[1])
}

func isThirdParty(specifier string) bool {
	return !strings.HasPrefix(specifier, ".") && !strings.HasPrefix(specifier, "/")
}
