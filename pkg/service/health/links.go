package health

import (
	"regexp"
	"strings"
)

// wikiLinkPattern matches [[Target]] and [[Target|alias]] style references.
var wikiLinkPattern = regexp.MustCompile(`\[\[(.*?)\]\]`)

// extractLinks returns the link targets referenced by the given content.
// An aliased link contributes its target, not its display text. Empty
// targets are skipped.
func extractLinks(content string) []string {
	matches := wikiLinkPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}

	targets := make([]string, 0, len(matches))
	for _, m := range matches {
		target := m[1]
		if idx := strings.Index(target, "|"); idx >= 0 {
			target = target[:idx]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		targets = append(targets, target)
	}
	return targets
}
