// Package codegen turns a model reply into the component source handed to
// the rendering surface, either by extracting a fenced block or by falling
// back to a canned skeleton.
package codegen

import (
	"path"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
)

// Origin records how an Artifact's source was obtained.
type Origin string

const (
	OriginExtracted   Origin = "extracted"
	OriginSynthesized Origin = "synthesized"
)

// Artifact is the code handed to the rendering surface for one turn.
type Artifact struct {
	Source   string `json:"source"`
	Origin   Origin `json:"origin"`
	Language string `json:"language"`
	Filename string `json:"filename"`
}

// defaultTag is assumed for untagged fences; the system instruction asks
// for tsx.
const defaultTag = "tsx"

// FromBlock builds an extracted Artifact from a fenced block.
func FromBlock(b Block) Artifact {
	lang, ext := language(b.Tag)
	return Artifact{
		Source:   b.Code,
		Origin:   OriginExtracted,
		Language: lang,
		Filename: filenameFor(componentName(b.Code), ext),
	}
}

// Resolve returns the artifact for a reply: the extracted block when there
// is one, a synthesized skeleton for prompt otherwise.
func Resolve(reply, prompt string) Artifact {
	if b, ok := Extract(reply); ok {
		return FromBlock(b)
	}
	return Synthesize(prompt)
}

// language maps a fence tag to a canonical language name and a file
// extension using the chroma lexer registry.
func language(tag string) (string, string) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		tag = defaultTag
	}
	lexer := lexers.Get(tag)
	if lexer == nil {
		return tag, ".txt"
	}
	cfg := lexer.Config()

	ext := ""
	for _, glob := range cfg.Filenames {
		e := path.Ext(glob)
		if e == "."+tag {
			ext = e
			break
		}
		if ext == "" && strings.HasPrefix(glob, "*.") {
			ext = e
		}
	}
	if ext == "" {
		ext = ".txt"
	}
	return strings.ToLower(cfg.Name), ext
}

var (
	defaultExportRe = regexp.MustCompile(`export\s+default\s+(?:async\s+)?(?:function|class)\s+([A-Z][A-Za-z0-9_]*)`)
	declRe          = regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:const|let|function|class)\s+([A-Z][A-Za-z0-9_]*)`)
)

// componentName finds the exported component in source, preferring the
// default export.
func componentName(source string) string {
	if m := defaultExportRe.FindStringSubmatch(source); m != nil {
		return m[1]
	}
	if m := declRe.FindStringSubmatch(source); m != nil {
		return m[1]
	}
	return "Component"
}

func filenameFor(name, ext string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return -1
	}, name)
	if safe == "" {
		safe = "Component"
	}
	return safe + ext
}
