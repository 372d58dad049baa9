package codegen

import (
	"fmt"
	"html"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// skeleton is a canned component selected by keyword.
type skeleton struct {
	name     string
	keywords []string
	source   string
}

// skeletons are checked in order; the first keyword hit wins.
var skeletons = []skeleton{
	{
		name:     "Button",
		keywords: []string{"button", "bottone", "bottoni", "botón", "boton", "bouton", "pulsante", "pulsanti", "knopf"},
		source: `export default function Button() {
  return (
    <button
      type="button"
      data-prompt-id="%s"
      className="rounded-lg bg-blue-600 px-4 py-2 font-medium text-white hover:bg-blue-700 focus:outline-none focus:ring-2 focus:ring-blue-400"
    >
      Click me
    </button>
  );
}`,
	},
	{
		name:     "Form",
		keywords: []string{"form", "modulo", "moduli", "formulario", "formulaire", "login", "signup", "sign up"},
		source: `export default function Form() {
  return (
    <form data-prompt-id="%s" className="mx-auto flex w-full max-w-sm flex-col gap-4 p-4">
      <label className="flex flex-col gap-1 text-sm">
        Email
        <input type="email" name="email" required className="rounded border px-3 py-2" />
      </label>
      <label className="flex flex-col gap-1 text-sm">
        Password
        <input type="password" name="password" required className="rounded border px-3 py-2" />
      </label>
      <button type="submit" className="rounded bg-blue-600 px-4 py-2 text-white">
        Submit
      </button>
    </form>
  );
}`,
	},
	{
		name:     "Card",
		keywords: []string{"card", "scheda", "schede", "tarjeta", "carte"},
		source: `export default function Card() {
  return (
    <article data-prompt-id="%s" className="max-w-sm overflow-hidden rounded-xl border bg-white shadow-sm">
      <div className="p-6">
        <h2 className="text-lg font-semibold">Title</h2>
        <p className="mt-2 text-sm text-gray-600">Card description goes here.</p>
      </div>
    </article>
  );
}`,
	},
	{
		name:     "Navbar",
		keywords: []string{"navbar", "nav", "menu", "header"},
		source: `export default function Navbar() {
  return (
    <nav data-prompt-id="%s" aria-label="Main" className="flex flex-wrap items-center justify-between gap-4 border-b px-4 py-3">
      <span className="font-semibold">Brand</span>
      <ul className="flex gap-4 text-sm">
        <li><a href="#" className="hover:underline">Home</a></li>
        <li><a href="#" className="hover:underline">About</a></li>
        <li><a href="#" className="hover:underline">Contact</a></li>
      </ul>
    </nav>
  );
}`,
	},
}

const genericSource = `/* %s */
export default function Component() {
  return (
    <section data-prompt-id="%s" className="rounded-lg border p-6">
      <p className="text-sm text-gray-700">%s</p>
    </section>
  );
}`

// Synthesize returns a canned component for prompt. The output depends on
// prompt alone.
func Synthesize(prompt string) Artifact {
	id := promptID(prompt)
	words := wordsOf(prompt)

	for _, s := range skeletons {
		for _, kw := range s.keywords {
			if hasWord(words, kw) {
				return synthesized(s.name, fmt.Sprintf(s.source, id))
			}
		}
	}
	return synthesized("Component", fmt.Sprintf(genericSource, commentSafe(prompt), id, jsxText(prompt)))
}

// wordsOf lower-cases prompt and reduces it to " w1 w2 ... wn ", so a
// keyword only matches whole words.
func wordsOf(prompt string) string {
	fields := strings.FieldsFunc(strings.ToLower(prompt), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return " " + strings.Join(fields, " ") + " "
}

// hasWord matches kw, or its English plural, as whole words.
func hasWord(words, kw string) bool {
	for _, form := range []string{kw, kw + "s", kw + "es"} {
		if strings.Contains(words, " "+form+" ") {
			return true
		}
	}
	return false
}

func synthesized(name, source string) Artifact {
	lang, ext := language(defaultTag)
	return Artifact{
		Source:   source,
		Origin:   OriginSynthesized,
		Language: lang,
		Filename: filenameFor(name, ext),
	}
}

func promptID(prompt string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(prompt))
}

func commentSafe(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.ReplaceAll(s, "*/", "* /")
}

var jsxReplacer = strings.NewReplacer("{", "&#123;", "}", "&#125;")

func jsxText(s string) string {
	return jsxReplacer.Replace(html.EscapeString(strings.Join(strings.Fields(s), " ")))
}
