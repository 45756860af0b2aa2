// Package artifact resolves a job's declared include/exclude glob
// patterns against the files present in its layer's merged view and
// copies the matches out of the build container (spec.md §4.6).
//
// Patterns use the Ant-style grammar: "?" matches one non-slash
// character, "*" matches a run of non-slash characters, and "**"
// additionally matches across slashes. bmatcuk/doublestar/v4
// implements exactly this grammar, so matching is a direct call into
// the library rather than a hand-rolled matcher.
package artifact
