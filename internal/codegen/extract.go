package codegen

import (
	"regexp"
	"strings"
)

// Block is one fenced region of a reply.
type Block struct {
	Tag  string
	Code string
}

// fenceRe matches an opening fence with an optional tag, the rest of that
// line, and the shortest body up to the next closing fence.
var fenceRe = regexp.MustCompile("(?s)```[ \\t]*([A-Za-z0-9_+#.-]*)[^\\n]*\\n(.*?)```")

var uiTags = map[string]bool{
	"":           true,
	"tsx":        true,
	"jsx":        true,
	"ts":         true,
	"typescript": true,
	"js":         true,
	"javascript": true,
	"react":      true,
	"html":       true,
	"vue":        true,
	"svelte":     true,
}

// Extract returns the first fenced block whose tag is empty or a UI source
// alias, falling back to the first fenced block of any tag. Empty blocks are
// skipped. A reply without a closed fence is a miss, not an error.
func Extract(text string) (Block, bool) {
	var first *Block
	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		b := Block{Tag: m[1], Code: strings.TrimSpace(m[2])}
		if b.Code == "" {
			continue
		}
		if uiTags[strings.ToLower(b.Tag)] {
			return b, true
		}
		if first == nil {
			first = &b
		}
	}
	if first == nil {
		return Block{}, false
	}
	return *first, true
}
