package matrix

import (
	"strings"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// addressed reports whether a group-room message is meant for the bot: a
// command, an explicit mention or a reply
func addressed(msg *event.MessageEventContent, botID id.UserID, isCommand bool) bool {
	if isCommand {
		return true
	}
	if isReply(msg) {
		return true
	}
	if msg.Mentions != nil {
		for _, u := range msg.Mentions.UserIDs {
			if u == botID {
				return true
			}
		}
	}
	lower := strings.ToLower(msg.Body)
	if strings.Contains(lower, strings.ToLower(botID.String())) {
		return true
	}
	if lp := localpart(botID); lp != "" && strings.Contains(lower, "@"+strings.ToLower(lp)) {
		return true
	}
	return false
}

func isReply(msg *event.MessageEventContent) bool {
	return msg.RelatesTo != nil && msg.RelatesTo.InReplyTo != nil && msg.RelatesTo.InReplyTo.EventID != ""
}

// stripMention removes the bot's handle from body so the model sees only the message
func stripMention(body string, botID id.UserID) string {
	out := replaceFold(body, botID.String())
	if lp := localpart(botID); lp != "" {
		out = replaceFold(out, "@"+lp)
	}
	out = strings.TrimLeft(strings.TrimSpace(out), ":, ")
	return strings.TrimSpace(out)
}

// replaceFold removes every case-insensitive occurrence of needle from s
func replaceFold(s, needle string) string {
	if needle == "" {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); {
		if len(s)-i >= len(needle) && strings.EqualFold(s[i:i+len(needle)], needle) {
			i += len(needle)
			continue
		}
		sb.WriteByte(s[i])
		i++
	}
	return sb.String()
}

// localpart returns "shreya" for "@shreya:example.org"
func localpart(userID id.UserID) string {
	s := strings.TrimPrefix(userID.String(), "@")
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return s
}
