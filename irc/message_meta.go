package irc

// Unsupported carries a structurally well-formed message whose command
// this package does not recognize. Command is uppercased exactly as
// received; Params are the raw middle/trailing parameters, unsplit by any
// command-specific grammar.
type Unsupported struct {
	rawMessage
	Command string
	Params  []string
}

// ParseError carries a message that tokenized correctly (tags, prefix,
// command were all well-formed) but failed a command's semantic checks,
// e.g. a missing required parameter or a parameter that failed to
// convert. Names lists the extractor parameter names that failed, in
// the order they were evaluated; Reason is a short human-readable
// summary. The original line is still available via Raw().
type ParseError struct {
	rawMessage
	Command string
	Names   []string
	Reason  string
}
