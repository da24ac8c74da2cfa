package tagdb

import "strings"

var unescaper = strings.NewReplacer(`\(`, "(", `\)`, ")")

// Normalize returns the canonical form of a tag: lower case, underscores
// replaced by spaces, escaped parentheses unescaped and runs of whitespace
// collapsed to one space. An all-blank tag normalizes to "".
func Normalize(tag string) string {
	tag = unescaper.Replace(tag)
	tag = strings.ToLower(tag)
	tag = strings.ReplaceAll(tag, "_", " ")
	return strings.Join(strings.Fields(tag), " ")
}
