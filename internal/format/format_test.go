package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sparklost/spacebar-bridge/internal/event"
)

func TestReplaceEmoji(t *testing.T) {
	assert.Equal(t, "x:foo:y", ReplaceEmoji("x<:foo:123>y"))
	assert.Equal(t, ":wave:", ReplaceEmoji("<a:wave:456>"))
	assert.Equal(t, "no emoji here", ReplaceEmoji("no emoji here"))
}

func TestReplaceMentions(t *testing.T) {
	mentions := []event.Mention{{ID: "42", Username: "ada"}}
	assert.Equal(t, "@ada", ReplaceMentions("<@42>", mentions))
	// Unknown ids are left unchanged.
	assert.Equal(t, "<@43>", ReplaceMentions("<@43>", mentions))
	assert.Equal(t, "hi @ada!", ReplaceMentions("hi <@42>!", mentions))
}

func TestReplaceRoles(t *testing.T) {
	assert.Equal(t, "@unknown_role", ReplaceRoles("<@&7>", nil))
	roles := []Role{{ID: "7", Name: "mods"}}
	assert.Equal(t, "@mods", ReplaceRoles("<@&7>", roles))
	// Role tokens must not be eaten by the user mention pass.
	assert.Equal(t, "<@&7>", ReplaceMentions("<@&7>", nil))
}

func TestReplaceChannelURLs(t *testing.T) {
	assert.Equal(t, "<#2>>MSG", ReplaceChannelURLs("https://discord.com/channels/1/2/3"))
	assert.Equal(t, "<#2>", ReplaceChannelURLs("https://discord.com/channels/1/2"))
}

func TestReplaceChannels(t *testing.T) {
	assert.Equal(t, "@unknown_channel", ReplaceChannels("<#9>", nil))
	assert.Equal(t, "#general", ReplaceChannels("<#9>", []Channel{{ID: "9", Name: "general"}}))
}

func TestFormatPollOngoing(t *testing.T) {
	now := time.Unix(1000, 0)
	poll := &event.Poll{
		Question: "Q?",
		Options: []event.PollOption{
			{Answer: "A", Count: 1, MeVoted: true},
			{Answer: "B", Count: 3, MeVoted: false},
		},
		Expires: 2000,
	}
	want := "> *Poll (ongoing):*\n" +
		"> Q?\n" +
		">   * A (1 votes, 25%)\n" +
		">   - B (3 votes, 75%)\n" +
		"> Ends <t:2000:R>"
	assert.Equal(t, want, FormatPoll(poll, now))
}

func TestFormatPollEndedZeroVotes(t *testing.T) {
	now := time.Unix(3000, 0)
	poll := &event.Poll{
		Question: "Q?",
		Options: []event.PollOption{
			{Answer: "A"},
			{Answer: "B"},
		},
		Expires: 2000,
	}
	want := "> *Poll (ended):*\n" +
		"> Q?\n" +
		">   - A (0 votes, 0%)\n" +
		">   - B (0 votes, 0%)\n" +
		"> Ended <t:2000:R>"
	assert.Equal(t, want, FormatPoll(poll, now))
}

func TestBuildMessageEmpty(t *testing.T) {
	assert.Equal(t, "", BuildMessage(&event.Message{}, nil, nil))
}

func TestBuildMessageContent(t *testing.T) {
	msg := &event.Message{
		Content:  "hey <@42> check <:hi:1> in <#9>",
		Mentions: []event.Mention{{ID: "42", Username: "ada"}},
	}
	got := BuildMessage(msg, nil, []Channel{{ID: "9", Name: "general"}})
	assert.Equal(t, "hey @ada check :hi: in #general", got)
}

func TestBuildMessageInteractionPrefix(t *testing.T) {
	msg := &event.Message{
		Content:  "pong",
		Interact: &event.Interaction{Username: "ada", Command: "ping"},
	}
	assert.Equal(t, "╭──⤙ ada used [ping]\npong", BuildMessage(msg, nil, nil))
}

func TestBuildMessageEmbeds(t *testing.T) {
	msg := &event.Message{
		Embeds: []event.Embed{
			{Type: "image/png", URL: "https://cdn.example/a.png"},
			{Type: "rich", URL: "https://example.com/b", MainURL: "https://example.com/b"},
			{Type: "link", URL: "https://example.com/c", MainURL: "https://example.com/c"},
			{Type: "image/gif", URL: "https://cdn.example/hidden.gif", Hidden: true},
		},
	}
	want := "[(image attachment)](https://cdn.example/a.png)\n" +
		"(rich embed):\nhttps://example.com/b\n" +
		"[(link embed)](https://example.com/c)"
	assert.Equal(t, want, BuildMessage(msg, nil, nil))
}

func TestBuildMessageEmbedURLAlreadyInContent(t *testing.T) {
	msg := &event.Message{
		Content: "see https://example.com/c",
		Embeds: []event.Embed{
			{Type: "link", URL: "https://example.com/c", MainURL: "https://example.com/c"},
		},
	}
	assert.Equal(t, "see https://example.com/c", BuildMessage(msg, nil, nil))
}

func TestBuildMessageStickers(t *testing.T) {
	msg := &event.Message{
		Stickers: []event.Sticker{
			{Name: "a", FormatType: 1},
			{Name: "b", FormatType: 2},
			{Name: "c", FormatType: 3},
			{Name: "d", FormatType: 4},
		},
	}
	want := "[(png sticker)](a)\n[(apng sticker)](b)\n(lottie sticker: c)\n[(gif sticker)](d)"
	assert.Equal(t, want, BuildMessage(msg, nil, nil))
}
