package daemonconfig

import (
	"fmt"
	"regexp"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// extractLine pulls the line number yaml.v3 embeds in its error text, best
// effort, for ParseError's Line field.
func extractLine(err error) int {
	if err == nil {
		return 0
	}
	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}
	var line int
	if _, scanErr := fmt.Sscanf(matches[1], "%d", &line); scanErr != nil {
		return 0
	}
	return line
}
