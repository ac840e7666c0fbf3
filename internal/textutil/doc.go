// Package textutil provides small text helpers shared by the CLI, the
// project catalog and the agents: project slugs, manuscript file names, word
// counting and rune-safe truncation.
package textutil
