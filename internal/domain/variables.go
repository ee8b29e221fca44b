package domain

import "regexp"

// variableNameExpression is the host's variable naming rule: a percent sign,
// an alphanumeric, then at least two word characters, not ending in an underscore.
const variableNameExpression = `%[a-zA-Z0-9][a-zA-Z0-9_]*[a-zA-Z0-9]`

var (
	variableNamePattern       = regexp.MustCompile(`^` + variableNameExpression + `$`)
	variableContainingPattern = regexp.MustCompile(variableNameExpression)
)

// IsValidVariableName reports whether name is a valid host variable name.
func IsValidVariableName(name string) bool {
	return len(name) >= 4 && variableNamePattern.MatchString(name)
}

// ContainsVariable reports whether s references a host variable anywhere.
// Values containing variables are resolved by the host at fire time.
func ContainsVariable(s string) bool {
	for _, loc := range variableContainingPattern.FindAllStringIndex(s, -1) {
		if loc[1]-loc[0] >= 4 {
			return true
		}
	}
	return false
}
