// Package transport – normalize.go reduces the many WhatsApp message
// shapes to a canonical text payload for command dispatch.
package transport

import (
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
)

// Unwrap peels container envelopes (ephemeral, view-once and its variants,
// document-with-caption) until it reaches a leaf content shape. A message
// that matches no known container is already a leaf. Nil in, nil out.
func Unwrap(msg *waE2E.Message) *waE2E.Message {
	for msg != nil {
		switch {
		case msg.EphemeralMessage != nil:
			msg = msg.EphemeralMessage.GetMessage()
		case msg.ViewOnceMessageV2 != nil:
			msg = msg.ViewOnceMessageV2.GetMessage()
		case msg.ViewOnceMessageV2Extension != nil:
			msg = msg.ViewOnceMessageV2Extension.GetMessage()
		case msg.DocumentWithCaptionMessage != nil:
			msg = msg.DocumentWithCaptionMessage.GetMessage()
		case msg.ViewOnceMessage != nil:
			msg = msg.ViewOnceMessage.GetMessage()
		default:
			return msg
		}
	}
	return nil
}

// ExtractText pulls the text payload out of a leaf message, trying each
// known shape in fixed priority order. The first populated field wins.
// Returns ("", false) for textless messages, which are skipped for
// command dispatch but still visible to auto-behaviors.
func ExtractText(msg *waE2E.Message) (string, bool) {
	if msg == nil {
		return "", false
	}

	if t := msg.GetConversation(); t != "" {
		return t, true
	}
	if ext := msg.ExtendedTextMessage; ext != nil && ext.GetText() != "" {
		return ext.GetText(), true
	}
	if img := msg.ImageMessage; img != nil && img.GetCaption() != "" {
		return img.GetCaption(), true
	}
	if vid := msg.VideoMessage; vid != nil && vid.GetCaption() != "" {
		return vid.GetCaption(), true
	}
	if btn := msg.ButtonsResponseMessage; btn != nil && btn.GetSelectedButtonID() != "" {
		return btn.GetSelectedButtonID(), true
	}
	if list := msg.ListResponseMessage; list != nil {
		if row := list.GetSingleSelectReply().GetSelectedRowID(); row != "" {
			return row, true
		}
	}
	if tpl := msg.TemplateButtonReplyMessage; tpl != nil && tpl.GetSelectedID() != "" {
		return tpl.GetSelectedID(), true
	}
	if react := msg.ReactionMessage; react != nil && react.GetText() != "" {
		return react.GetText(), true
	}
	if flow := msg.InteractiveResponseMessage; flow != nil {
		if params := flow.GetNativeFlowResponseMessage().GetParamsJSON(); params != "" {
			return params, true
		}
	}

	return "", false
}

// Normalize unwraps and extracts in one step.
func Normalize(msg *waE2E.Message) (string, bool) {
	return ExtractText(Unwrap(msg))
}

// RevokedMessageID returns the id of the message a revoke refers to, or
// "" when the payload is not a delete-for-everyone protocol message.
func RevokedMessageID(msg *waE2E.Message) string {
	proto := Unwrap(msg).GetProtocolMessage()
	if proto == nil || proto.GetType() != waE2E.ProtocolMessage_REVOKE {
		return ""
	}
	return proto.GetKey().GetID()
}
