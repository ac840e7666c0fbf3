// Package agents implements the stage agents that call the generation
// service.
//
// Every generating stage is driven by an Instruction from a YAML pack (an
// embedded default ships with the binary): a system prompt, a text/template
// user prompt rendered against the integrated snapshot, and a response
// mode. Responses are decoded into the hub payload types and written to the
// stage's partition under their declared schema. Content units additionally
// receive the tail of the previous chapter and related documents found by a
// similarity search over the store. Assembly is local: it compiles the
// written chapters into the manuscript.
package agents
