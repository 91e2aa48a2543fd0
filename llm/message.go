// Package llm wraps remote text generation: role tagged requests, streaming
// accumulation and retries.
package llm

import "strings"

type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is a single role tagged segment of a generation request.
type Message struct {
	Role    Role
	Content string
}

func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Contains reports whether any of the messages carries directive, case is ignored.
func Contains(msgs []Message, directive string) bool {
	directive = strings.ToLower(directive)
	for _, m := range msgs {
		if strings.Contains(strings.ToLower(m.Content), directive) {
			return true
		}
	}
	return false
}

// Size returns number of characters in all message contents.
func Size(msgs []Message) (n int) {
	for _, m := range msgs {
		n += len([]rune(m.Content))
	}
	return n
}
