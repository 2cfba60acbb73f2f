package whatsapp

import (
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

	"coinbot/internal/commands"
)

const (
	reactSuccess = "✅"
	reactWarning = "⚠️"
)

// messageText returns the user-typed text of plain, extended and captioned
// messages.
func messageText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if text := msg.GetConversation(); text != "" {
		return text
	}
	if text := msg.GetExtendedTextMessage().GetText(); text != "" {
		return text
	}
	if text := msg.GetImageMessage().GetCaption(); text != "" {
		return text
	}
	return msg.GetVideoMessage().GetCaption()
}

func mentionedJIDs(msg *waE2E.Message) []string {
	return msg.GetExtendedTextMessage().GetContextInfo().GetMentionedJID()
}

func replyMessage(text string, mentions []string) *waE2E.Message {
	ext := &waE2E.ExtendedTextMessage{Text: proto.String(text)}
	if len(mentions) > 0 {
		ext.ContextInfo = &waE2E.ContextInfo{MentionedJID: mentions}
	}
	return &waE2E.Message{ExtendedTextMessage: ext}
}

// quoting attaches the original command as the quoted message.
func quoting(msg *waE2E.Message, stanzaID, participant string, quoted *waE2E.Message) *waE2E.Message {
	ext := msg.GetExtendedTextMessage()
	if ext == nil {
		return msg
	}
	if ext.ContextInfo == nil {
		ext.ContextInfo = &waE2E.ContextInfo{}
	}
	ext.ContextInfo.StanzaID = proto.String(stanzaID)
	ext.ContextInfo.Participant = proto.String(participant)
	ext.ContextInfo.QuotedMessage = quoted
	return msg
}

func reactionFor(o commands.Outcome) string {
	if o == commands.OutcomeWarning {
		return reactWarning
	}
	return reactSuccess
}
