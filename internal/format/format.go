// Package format rewrites normalized message content into plain text that
// renders meaningfully on the opposite backend.
package format

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sparklost/spacebar-bridge/internal/event"
)

var (
	emojiRe      = regexp.MustCompile(`<(.?):(.*?):(\d*?)>`)
	mentionRe    = regexp.MustCompile(`<@(\d+)>`)
	roleRe       = regexp.MustCompile(`<@&(\d+)>`)
	channelRe    = regexp.MustCompile(`<#(\d+)>`)
	channelURLRe = regexp.MustCompile(`https://discord\.com/channels/(\d*)/(\d*)(?:/(\d*))?`)
)

// Role is one entry of the guild role table used to resolve role mentions.
type Role struct {
	ID   string
	Name string
}

// Channel is one entry of the guild channel table used to resolve channel
// mentions.
type Channel struct {
	ID   string
	Name string
}

// ReplaceEmoji rewrites custom emoji tokens into their bare name:
// `<:emoji_name:emoji_id>` becomes `:emoji_name:`.
func ReplaceEmoji(text string) string {
	return emojiRe.ReplaceAllStringFunc(text, func(tok string) string {
		m := emojiRe.FindStringSubmatch(tok)
		return ":" + m[2] + ":"
	})
}

// ReplaceMentions resolves `<@user_id>` tokens against the message's own
// mention list. Unresolved mentions are left unchanged.
func ReplaceMentions(text string, mentions []event.Mention) string {
	return mentionRe.ReplaceAllStringFunc(text, func(tok string) string {
		id := mentionRe.FindStringSubmatch(tok)[1]
		for _, u := range mentions {
			if u.ID == id {
				return "@" + u.Username
			}
		}
		return tok
	})
}

// ReplaceRoles resolves `<@&role_id>` tokens against the roles table.
// Unresolved roles become `@unknown_role`.
func ReplaceRoles(text string, roles []Role) string {
	return roleRe.ReplaceAllStringFunc(text, func(tok string) string {
		id := roleRe.FindStringSubmatch(tok)[1]
		for _, r := range roles {
			if r.ID == id {
				return "@" + r.Name
			}
		}
		return "@unknown_role"
	})
}

// ReplaceChannelURLs rewrites discord.com channel links into channel
// mentions, with a `>MSG` marker when the link targets a message.
func ReplaceChannelURLs(text string) string {
	return channelURLRe.ReplaceAllStringFunc(text, func(tok string) string {
		m := channelURLRe.FindStringSubmatch(tok)
		if m[3] != "" {
			return "<#" + m[2] + ">>MSG"
		}
		return "<#" + m[2] + ">"
	})
}

// ReplaceChannels resolves `<#channel_id>` tokens against the channels
// table. Unresolved channels become `@unknown_channel`.
func ReplaceChannels(text string, channels []Channel) string {
	return channelRe.ReplaceAllStringFunc(text, func(tok string) string {
		id := channelRe.FindStringSubmatch(tok)[1]
		for _, c := range channels {
			if c.ID == id {
				return "#" + c.Name
			}
		}
		return "@unknown_channel"
	})
}

// cleanType strips the subtype from a MIME-like embed type,
// `image/png` becomes `image`.
func cleanType(embedType string) string {
	t, _, _ := strings.Cut(embedType, "/")
	return t
}

// FormatPoll renders poll data as a block-quoted text summary.
func FormatPoll(poll *event.Poll, now time.Time) string {
	status, expires := "ongoing", "Ends"
	if poll.Expires < now.Unix() {
		status, expires = "ended", "Ended"
	}
	lines := []string{
		fmt.Sprintf("*Poll (%s):*", status),
		poll.Question,
	}
	total := 0
	for _, opt := range poll.Options {
		total += opt.Count
	}
	for _, opt := range poll.Options {
		votes, percent := 0, 0
		if total != 0 {
			votes = opt.Count
			percent = int(float64(votes)/float64(total)*100 + 0.5)
		}
		marker := "-"
		if opt.MeVoted {
			marker = "*"
		}
		lines = append(lines, fmt.Sprintf("  %s %s (%d votes, %d%%)", marker, opt.Answer, votes, percent))
	}
	lines = append(lines, fmt.Sprintf("%s <t:%d:R>", expires, poll.Expires))

	var b strings.Builder
	for _, line := range lines {
		b.WriteString("> ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// BuildMessage renders a normalized message into text for the other
// backend. An empty result means the message had no renderable content;
// the relay substitutes a placeholder in that case.
func BuildMessage(msg *event.Message, roles []Role, channels []Channel) string {
	var content string

	if msg.Interact != nil {
		content = fmt.Sprintf("╭──⤙ %s used [%s]", msg.Interact.Username, msg.Interact.Command)
	}

	body := msg.Content
	if msg.Poll != nil {
		body = FormatPoll(msg.Poll, time.Now())
	}

	if body != "" {
		if content != "" {
			content += "\n"
		}
		body = ReplaceEmoji(body)
		body = ReplaceMentions(body, msg.Mentions)
		body = ReplaceRoles(body, roles)
		body = ReplaceChannelURLs(body)
		body = ReplaceChannels(body, channels)
		content += body
	}

	for _, embed := range msg.Embeds {
		if embed.URL == "" || embed.Hidden || strings.Contains(content, embed.URL) {
			continue
		}
		if content != "" {
			content += "\n"
		}
		switch {
		case embed.MainURL == "":
			content += fmt.Sprintf("[(%s attachment)](%s)", cleanType(embed.Type), embed.URL)
		case embed.Type == "rich":
			content += fmt.Sprintf("(rich embed):\n%s", embed.URL)
		default:
			content += fmt.Sprintf("[(%s embed)](%s)", cleanType(embed.Type), embed.URL)
		}
	}

	for _, sticker := range msg.Stickers {
		if content != "" {
			content += "\n"
		}
		switch sticker.FormatType {
		case 1:
			content += fmt.Sprintf("[(png sticker)](%s)", sticker.Name)
		case 2:
			content += fmt.Sprintf("[(apng sticker)](%s)", sticker.Name)
		case 3:
			content += fmt.Sprintf("(lottie sticker: %s)", sticker.Name)
		default:
			content += fmt.Sprintf("[(gif sticker)](%s)", sticker.Name)
		}
	}

	return content
}
