package ragengine

import "github.com/ragcore/ragcore/internal/intent"

// ParseIntent recognizes the slash-command grammar over a line of user
// input. See internal/intent for the full grammar.
func (e *Engine) ParseIntent(input string) intent.ParsedIntent {
	return intent.Parse(input)
}
