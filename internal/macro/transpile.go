package macro

import "regexp"

// Transpile does a best-effort strip of TypeScript-only syntax down to
// runnable JavaScript: type annotations on parameters/fields, interface and
// type-alias declarations, and `as`/non-null-assertion casts. It does not
// implement a full TypeScript compiler — the pack carries no such
// dependency (see DESIGN.md) — but it is sufficient for macros written in
// the straightforward style the config-manifest extractor already expects
// (typed class fields, no generics-heavy code).
func Transpile(src string) (string, error) {
	out := src

	out = interfaceDeclRe.ReplaceAllString(out, "")
	out = typeAliasRe.ReplaceAllString(out, "")
	out = fieldAnnotationRe.ReplaceAllString(out, "$1$2$3")
	out = paramAnnotationRe.ReplaceAllString(out, "$1$2")
	out = returnAnnotationRe.ReplaceAllString(out, ")$1")
	out = nonNullAssertionRe.ReplaceAllString(out, "$1")
	out = asCastRe.ReplaceAllString(out, "")

	return out, nil
}

var (
	interfaceDeclRe  = regexp.MustCompile(`(?s)\binterface\s+\w+\s*\{[^}]*\}`)
	typeAliasRe      = regexp.MustCompile(`(?m)^\s*type\s+\w+\s*=.*;?\s*$`)
	fieldAnnotationRe = regexp.MustCompile(`(\b\w+)(\??)\s*:\s*[\w<>\[\]'"|. ]+(\s*[=;,)])`)
	paramAnnotationRe = regexp.MustCompile(`(\b\w+)\s*:\s*[\w<>\[\]'"|. ]+(\s*[,)])`)
	returnAnnotationRe = regexp.MustCompile(`\)\s*:\s*[\w<>\[\]'"|. ]+(\s*\{)`)
	nonNullAssertionRe = regexp.MustCompile(`!([.\s;,)])`)
	asCastRe          = regexp.MustCompile(`\s+as\s+[\w<>\[\]'"|. ]+`)
)
