package prompt

const markdownHint = "Use Markdown formatting when appropriate."

const limitHint = "Limit your response to no more than 200 characters, but make sure to construct complete sentences."

// Pair is the instruction pair sent to a model: a system framing and the user content.
type Pair struct {
	System string
	User   string
}

var systemTemplates = map[Mode]string{
	Continue: "You are an AI writing assistant that continues existing text based on context from prior text. " +
		"Give more weight/priority to the later characters than the beginning ones. " +
		limitHint + markdownHint,
	Improve:      "You are an AI writing assistant that improves existing text. " + limitHint + markdownHint,
	Shorten:      "You are an AI writing assistant that shortens existing text. " + markdownHint,
	Lengthen:     "You are an AI writing assistant that lengthens existing text. " + markdownHint,
	Fix:          "You are an AI writing assistant that fixes grammar and spelling errors in existing text. " + limitHint + markdownHint,
	ApplyCommand: "You are an AI writing assistant that generates text based on a prompt. You take an input from the user and a command for manipulating the text" + markdownHint,
	Default:      "You are a helpful AI writing assistant. " + markdownHint,
}

// Build returns the instruction pair for mode. Text and command are inserted
// verbatim. Modes without a template use the Default one.
func Build(mode Mode, text, command string) Pair {
	system, ok := systemTemplates[mode]
	if !ok {
		mode = Default
		system = systemTemplates[Default]
	}

	var user string
	switch {
	case mode.IsRefinement():
		user = "The existing text is: " + text
	case mode == ApplyCommand:
		user = "For this text: " + text + ". You have to respect the command: " + command
	default:
		user = text
	}
	return Pair{System: system, User: user}
}
