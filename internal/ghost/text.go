package ghost

import (
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	stripPolicy     *bluemonday.Policy
	stripPolicyOnce sync.Once

	// Block boundaries become line breaks before tags are stripped.
	blockBoundary = regexp.MustCompile(`(?i)(<br\s*/?>|</(p|div|h[1-6]|li|tr|blockquote|pre|figure|figcaption|ul|ol|table)>)`)
	blankRun      = regexp.MustCompile(`\n{3,}`)
	spaceRun      = regexp.MustCompile(`[ \t\f\r\v]+`)
)

func policy() *bluemonday.Policy {
	stripPolicyOnce.Do(func() {
		// StrictPolicy drops every element; script and style bodies go with them.
		stripPolicy = bluemonday.StrictPolicy()
	})
	return stripPolicy
}

// HTMLToText flattens Ghost post HTML into plain text for embedding. Links keep
// their label only, images are dropped.
func HTMLToText(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}

	marked := blockBoundary.ReplaceAllString(body, "$1\n")
	stripped := html.UnescapeString(policy().Sanitize(marked))

	lines := strings.Split(stripped, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}

	text := strings.Join(lines, "\n")
	text = blankRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
