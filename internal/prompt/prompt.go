package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/greatowl/receptionist/internal/session"
)

// BasePrompt is the fixed persona instruction sent at the head of every
// upstream request.
const BasePrompt = `You are Samantha, the AI receptionist for Great Owl Marketing.
You are warm, conversational, friendly, helpful, and human-like.
Keep replies short, natural, and engaging.

Services you can discuss:
1) AI Receptionists
2) Custom Chatbots

If the user asks for something outside those services, politely redirect them
to what Great Owl Marketing offers. When it helps the conversation, mention
that they can book a 30-minute call or visit greatowlmarketing.com, but never
paste more than one link per reply.

Do not restart the conversation with generic phrases like "How can I assist
you today?" unless the user explicitly changes subjects. Never echo the
user's text. Move the conversation forward.`

// confirmations is the closed vocabulary of short replies that, combined with
// a pending question, means "continue the thread" rather than "new topic".
var confirmations = map[string]struct{}{
	"yes":        {},
	"yeah":       {},
	"yep":        {},
	"sure":       {},
	"ok":         {},
	"okay":       {},
	"absolutely": {},
}

// IsConfirmation reports whether text is a bare confirmation word.
func IsConfirmation(text string) bool {
	_, ok := confirmations[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

// Assembler builds the ordered message sequence submitted upstream. It reads
// session state but never mutates it.
type Assembler struct {
	base string
}

// NewAssembler creates an assembler with the fixed base instruction.
func NewAssembler() *Assembler {
	return &Assembler{base: BasePrompt}
}

// Assemble produces, in order: the base system message, an optional
// continuation system message (pending question + confirmation reply), an
// optional personalization system message, the retained history, and the new
// user message.
func (a *Assembler) Assemble(history []session.Message, info session.UserInfo, pendingQuestion, userText string) []session.Message {
	now := time.Now()
	msgs := make([]session.Message, 0, len(history)+4)
	msgs = append(msgs, session.Message{Role: session.RoleSystem, Content: a.base, Timestamp: now})

	if pendingQuestion != "" && IsConfirmation(userText) {
		msgs = append(msgs, session.Message{
			Role:      session.RoleSystem,
			Content:   fmt.Sprintf("The user confirmed your earlier question: '%s'. Continue this conversation thread.", pendingQuestion),
			Timestamp: now,
		})
	}

	if ctx := personalization(info); ctx != "" {
		msgs = append(msgs, session.Message{Role: session.RoleSystem, Content: ctx, Timestamp: now})
	}

	msgs = append(msgs, history...)
	msgs = append(msgs, session.Message{Role: session.RoleUser, Content: userText, Timestamp: now})
	return msgs
}

func personalization(info session.UserInfo) string {
	var bits []string
	if info.Name != "" {
		bits = append(bits, fmt.Sprintf("The user's first name is %s. Use it naturally and occasionally, not in every reply.", info.Name))
	}
	if info.BusinessType != "" {
		bits = append(bits, fmt.Sprintf("The user runs a %s business. Tailor examples to that niche.", info.BusinessType))
	}
	return strings.Join(bits, " ")
}
