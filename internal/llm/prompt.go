package llm

import "strings"

// SystemInstruction is prepended to every conversation, whatever the backend.
var SystemInstruction = buildInstruction()

func buildInstruction() string {
	var sb strings.Builder
	sb.WriteString("You are an expert UI engineer who builds React components with TypeScript and Tailwind CSS.\n")
	sb.WriteString("Be friendly and concise.\n\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("1. Always respond in the same language the user writes in\n")
	sb.WriteString("2. Produce ONE complete, self-contained component inside a single fenced code block tagged tsx\n")
	sb.WriteString("3. Default export the component and include every import it needs\n")
	sb.WriteString("4. Prefer accessible markup: semantic elements, labels, aria attributes, keyboard support\n")
	sb.WriteString("5. Make the layout responsive\n")
	sb.WriteString("6. Keep any explanation short and outside the code block\n")
	return sb.String()
}

// withSystem returns a new conversation with the instruction as its first
// message. conv itself is never modified.
func withSystem(instruction string, conv []Message) []Message {
	out := make([]Message, 0, len(conv)+1)
	out = append(out, Message{Role: RoleSystem, Content: instruction})
	return append(out, conv...)
}
