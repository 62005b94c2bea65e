package sagas

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/casedesk-backend/internal/domain/conversation"
)

const maxDigestQuote = 120

// TranscriptDigest is the built-in Summarizer. It describes the exchange and
// quotes the last agent reply; deployments with a language model plug their
// own Summarizer in instead.
type TranscriptDigest struct {
	convs ConversationGetter
}

func NewTranscriptDigest(convs ConversationGetter) *TranscriptDigest {
	return &TranscriptDigest{convs: convs}
}

func (d *TranscriptDigest) SummarizeConversation(ctx context.Context, conversationID string) (string, error) {
	conv, err := d.convs.GetConversation(ctx, conversationID)
	if err != nil {
		return "", err
	}
	msgs := conv.Messages()
	if len(msgs) == 0 {
		return "", nil
	}

	var fromCustomer, fromAgent int
	var lastReply string
	for _, m := range msgs {
		switch m.SenderType {
		case conversation.SenderCustomer:
			fromCustomer++
		case conversation.SenderAgent:
			fromAgent++
			lastReply = m.Content
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d messages over %s (%d from customer, %d from agent).", len(msgs), channelName(conv.Channel()), fromCustomer, fromAgent)
	if lastReply = strings.Join(strings.Fields(lastReply), " "); lastReply != "" {
		if utf8.RuneCountInString(lastReply) > maxDigestQuote {
			lastReply = string([]rune(lastReply)[:maxDigestQuote]) + "..."
		}
		fmt.Fprintf(&b, " Last reply: %q", lastReply)
	}
	return b.String(), nil
}

func channelName(ch string) string {
	if strings.TrimSpace(ch) == "" {
		return "an unknown channel"
	}
	return ch
}
