// Package intent recognizes a small slash-command grammar over user
// queries, distinguishing a handful of structured commands from a plain
// natural-language query.
package intent

import "strings"

// Type classifies a parsed query.
type Type string

const (
	// TypeSummary requests a summary of the argument topic ("/summary").
	TypeSummary Type = "summary"
	// TypeDefine requests a definition of a term ("/define").
	TypeDefine Type = "define"
	// TypeExpandKnowledge requests elaboration on the prior answer ("/more").
	TypeExpandKnowledge Type = "expand_knowledge"
	// TypeGeneral is a plain natural-language query with no slash command.
	TypeGeneral Type = "general"
	// TypeInvalid is an empty input or an unrecognized/malformed command.
	TypeInvalid Type = "invalid"
)

// ParsedIntent is the result of parsing one line of user input.
type ParsedIntent struct {
	Type  Type
	Query string // the command argument, or the whole input for TypeGeneral
	Valid bool
	Error string // non-empty iff !Valid
}

// Parse recognizes the slash-command grammar:
//
//	""                -> invalid, "input is empty"
//	"/summary <arg>"  -> summary, arg (arg may be empty)
//	"/define <arg>"   -> define, arg; empty arg -> invalid, "Term required"
//	"/more <arg>"     -> expand_knowledge, arg
//	"/<other> <arg>"  -> invalid, "Unknown command '<other>'"
//	anything else     -> general, trimmed input
func Parse(input string) ParsedIntent {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return invalid("input is empty")
	}

	if !strings.HasPrefix(trimmed, "/") {
		return ParsedIntent{Type: TypeGeneral, Query: trimmed, Valid: true}
	}

	command, argument := splitCommand(trimmed)
	switch command {
	case "/summary":
		return ParsedIntent{Type: TypeSummary, Query: argument, Valid: true}
	case "/define":
		if argument == "" {
			return invalid("Term required")
		}
		return ParsedIntent{Type: TypeDefine, Query: argument, Valid: true}
	case "/more":
		return ParsedIntent{Type: TypeExpandKnowledge, Query: argument, Valid: true}
	default:
		return invalid("Unknown command '" + command + "'")
	}
}

// splitCommand splits trimmed input on its first space into a command
// token and the (trimmed) remainder.
func splitCommand(trimmed string) (command, argument string) {
	if idx := strings.IndexByte(trimmed, ' '); idx >= 0 {
		return trimmed[:idx], strings.TrimSpace(trimmed[idx+1:])
	}
	return trimmed, ""
}

func invalid(reason string) ParsedIntent {
	return ParsedIntent{Type: TypeInvalid, Valid: false, Error: reason}
}
