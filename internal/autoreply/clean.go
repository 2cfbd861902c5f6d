package autoreply

import (
	"regexp"
	"strings"

	"github.com/memohai/wabiz/internal/llm"
)

var replyLeadIns = []string{
	"Here's a draft reply:",
	"Here's a reply:",
	"Draft reply:",
	"Reply:",
	"Response:",
	"Message:",
	"Okay, here's a draft reply:",
}

type rewrite struct {
	re   *regexp.Regexp
	with string
}

// Applied in order to a drafted reply.
var replyRewrites = []rewrite{
	{regexp.MustCompile(`\*\*(.*?)\*\*`), "$1"},
	{regexp.MustCompile(`__(.*?)__`), "$1"},
	{regexp.MustCompile(`\*([^*\n]+)\*`), "$1"},
	{regexp.MustCompile(`(^|\s)_([^_\n]+)_(\s|$|[.,!?])`), "$1$2$3"},
	{regexp.MustCompile(`\*`), ""},
	{regexp.MustCompile(`(?is)Option \d+.*$`), ""},
	{regexp.MustCompile(`(?m)^\d+\..*$`), ""},
	{regexp.MustCompile(`(?s)\n\d+\..*$`), ""},
	{regexp.MustCompile(`(?is)\n\s*I would recommend.*$`), ""},
	{regexp.MustCompile(`(?is)\n\s*Good luck!.*$`), ""},
	{regexp.MustCompile(`(?i)(Here's|Here are)[^:\n]*:`), ""},
	{regexp.MustCompile(`(?i)^[^:\n]*draft[^:\n]*:`), ""},
	{regexp.MustCompile(`(?im)(Option|Choice|Alternative)[^:\-\n]*[:\-].*$`), ""},
	{regexp.MustCompile(`\([^)]*\)`), ""},
	{regexp.MustCompile(`[ \t]{2,}`), " "},
}

// CleanReply turns a drafted reply into text that can be sent as-is. It drops
// lead-ins, markdown emphasis, wrapping quotes, option lists and asides.
func CleanReply(text string) string {
	text = llm.StripLeadIn(text, replyLeadIns)
	for _, rw := range replyRewrites {
		text = rw.re.ReplaceAllString(text, rw.with)
	}
	text = strings.TrimSpace(text)

	lower := strings.ToLower(text)
	if strings.Contains(lower, "option") || strings.Contains(lower, "choice") {
		if i := strings.Index(text, "."); i >= 0 {
			text = strings.TrimSpace(text[:i]) + "."
		}
	}
	return llm.StripLeadIn(text, nil)
}
