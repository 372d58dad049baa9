package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		found bool
		tag   string
		code  string
	}{
		{"tagged", "Here you go:\n```tsx\nexport default function A() {}\n```\nEnjoy", true, "tsx", "export default function A() {}"},
		{"untagged", "```\n<div/>\n```", true, "", "<div/>"},
		{"trims content", "```jsx\n\n   <b/>  \n\n```", true, "jsx", "<b/>"},
		{"info after tag", "```tsx title=\"Button.tsx\"\nconst B = 1\n```", true, "tsx", "const B = 1"},
		{"no fence", "Sure! A button is a clickable element.", false, "", ""},
		{"unclosed fence", "```tsx\nconst A = () => <div/>", false, "", ""},
		{"no newline after fence", "```const a = 1```", false, "", ""},
		{"empty block", "```tsx\n\n```", false, "", ""},
		{"first ui block wins", "```tsx\nfirst\n```\n```tsx\nsecond\n```", true, "tsx", "first"},
		{"ui block preferred over earlier other tag", "```bash\nnpm i\n```\n```jsx\n<App/>\n```", true, "jsx", "<App/>"},
		{"any tag when no ui block", "```python\nprint(1)\n```", true, "python", "print(1)"},
		{"tag case ignored", "```TSX\nconst A = 1\n```", true, "TSX", "const A = 1"},
		{"inline backticks kept", "```tsx\nconst s = `a ${b}`\n```", true, "tsx", "const s = `a ${b}`"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ok := Extract(tt.text)
			require.Equal(t, tt.found, ok)
			assert.Equal(t, tt.tag, b.Tag)
			assert.Equal(t, tt.code, b.Code)
		})
	}
}

func TestExtractStreamedConcatenation(t *testing.T) {
	text := strings.Join([]string{"```tsx\n", "const X = ...\n", "```"}, "")
	b, ok := Extract(text)
	require.True(t, ok)
	assert.Equal(t, "const X = ...", b.Code)
}

func TestExtractIsPure(t *testing.T) {
	text := "intro\n```vue\n<template><p/></template>\n```\n```tsx\nx\n```"
	first, ok1 := Extract(text)
	second, ok2 := Extract(text)
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, first, second)
}

func TestFromBlock(t *testing.T) {
	a := FromBlock(Block{Tag: "tsx", Code: "import x from 'y'\n\nexport default function PricingCard() {\n  return null\n}"})
	assert.Equal(t, OriginExtracted, a.Origin)
	assert.Equal(t, "typescript", a.Language)
	assert.Equal(t, "PricingCard.tsx", a.Filename)

	a = FromBlock(Block{Tag: "", Code: "const X = ..."})
	assert.Equal(t, "typescript", a.Language)
	assert.Equal(t, "X.tsx", a.Filename)

	a = FromBlock(Block{Tag: "jsx", Code: "<div/>"})
	assert.Equal(t, "react", a.Language)
	assert.Equal(t, "Component.jsx", a.Filename)

	a = FromBlock(Block{Tag: "html", Code: "<p>hi</p>"})
	assert.Equal(t, "html", a.Language)
	assert.Equal(t, "Component.html", a.Filename)

	a = FromBlock(Block{Tag: "no-such-language", Code: "?"})
	assert.Equal(t, "no-such-language", a.Language)
	assert.Equal(t, "Component.txt", a.Filename)
}

func TestSynthesizeButtonInItalian(t *testing.T) {
	a := Synthesize("crea un bottone")
	assert.Equal(t, OriginSynthesized, a.Origin)
	assert.Equal(t, "Button.tsx", a.Filename)
	assert.Contains(t, a.Source, "<button")
	assert.Contains(t, a.Source, `data-prompt-id="`+promptID("crea un bottone")+`"`)
}

func TestSynthesizeSkeletonOrder(t *testing.T) {
	tests := []struct {
		prompt   string
		filename string
	}{
		{"Make a BUTTON please", "Button.tsx"},
		{"un botón rojo", "Button.tsx"},
		{"login form with a submit button", "Button.tsx"},
		{"a login screen", "Form.tsx"},
		{"product card", "Card.tsx"},
		{"a sticky navbar", "Navbar.tsx"},
		{"something else entirely", "Component.tsx"},
		{"three pricing cards", "Card.tsx"},
		{"due bottoni affiancati", "Button.tsx"},
		{"a sign-up page", "Form.tsx"},
		{"a platform information panel", "Component.tsx"},
		{"discard changes dialog", "Component.tsx"},
		{"navigation drawer", "Component.tsx"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.filename, Synthesize(tt.prompt).Filename, tt.prompt)
	}
}

func TestSynthesizeGenericEchoesEscapedPrompt(t *testing.T) {
	a := Synthesize("a {weird} <widget> */ thing")
	assert.Equal(t, OriginSynthesized, a.Origin)
	assert.Contains(t, a.Source, "/* a {weird} <widget> * / thing */")
	assert.Contains(t, a.Source, "a &#123;weird&#125; &lt;widget&gt; */ thing")
}

func TestSynthesizeIsDeterministic(t *testing.T) {
	for _, p := range []string{"crea un bottone", "hello", "", "card ✨"} {
		assert.Equal(t, Synthesize(p), Synthesize(p), p)
	}
	assert.NotEqual(t, Synthesize("alpha").Source, Synthesize("beta").Source)
}

func TestResolve(t *testing.T) {
	a := Resolve("```tsx\nexport default function Hero() {}\n```", "make a button")
	assert.Equal(t, OriginExtracted, a.Origin)
	assert.Equal(t, "Hero.tsx", a.Filename)

	a = Resolve("I cannot draw that.", "make a button")
	assert.Equal(t, OriginSynthesized, a.Origin)
	assert.Equal(t, "Button.tsx", a.Filename)
}
