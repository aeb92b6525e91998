package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	m, err := ParseMessage([]byte(`{
		"id": "100", "channel_id": "1", "guild_id": "g",
		"content": "hi <@42>",
		"author": {"id": "u1", "username": "ada", "global_name": "Ada", "avatar": "av1"},
		"member": {"nick": "adanick"},
		"mentions": [{"id": "42", "username": "bea"}],
		"embeds": [{"type": "link", "url": "https://example.com"}],
		"attachments": [{"url": "https://cdn.example/f.png", "content_type": "image/png"}],
		"sticker_items": [{"name": "wave", "format_type": 1}],
		"referenced_message": {
			"id": "90", "content": "earlier",
			"author": {"id": "u2", "username": "bea"},
			"mentions": [{"id": "u1", "username": "ada"}]
		}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "100", m.ID)
	assert.Equal(t, "1", m.ChannelID)
	assert.Equal(t, "g", m.GuildID)
	assert.Equal(t, "u1", m.UserID)
	assert.Equal(t, "ada", m.Username)
	assert.Equal(t, "Ada", m.GlobalName)
	assert.Equal(t, "adanick", m.Nick)
	assert.Equal(t, "av1", m.AvatarID)

	require.Len(t, m.Mentions, 1)
	assert.Equal(t, "42", m.Mentions[0].ID)

	// One real embed (MainURL set) and one attachment (no MainURL).
	require.Len(t, m.Embeds, 2)
	assert.Equal(t, "https://example.com", m.Embeds[0].MainURL)
	assert.Equal(t, "image/png", m.Embeds[1].Type)
	assert.Equal(t, "", m.Embeds[1].MainURL)

	require.Len(t, m.Stickers, 1)
	assert.Equal(t, "wave", m.Stickers[0].Name)

	require.NotNil(t, m.Referenced)
	assert.Equal(t, "90", m.Referenced.ID)
	assert.Equal(t, "u2", m.Referenced.UserID)
	require.Len(t, m.Referenced.Mentions, 1)
}

func TestParseMessagePoll(t *testing.T) {
	expiry := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	m, err := ParseMessage([]byte(`{
		"id": "100", "channel_id": "1",
		"author": {"id": "u1", "username": "ada"},
		"poll": {
			"question": {"text": "Q?"},
			"answers": [
				{"answer_id": 1, "poll_media": {"text": "A"}},
				{"answer_id": 2, "poll_media": {"text": "B"}}
			],
			"results": {"answer_counts": [
				{"id": 2, "count": 3, "me_voted": false},
				{"id": 1, "count": 1, "me_voted": true}
			]},
			"expiry": "2026-09-01T12:00:00Z"
		}
	}`))
	require.NoError(t, err)
	require.NotNil(t, m.Poll)
	assert.Equal(t, "Q?", m.Poll.Question)
	require.Len(t, m.Poll.Options, 2)
	// Counts are matched by answer id, not array position.
	assert.Equal(t, PollOption{Answer: "A", Count: 1, MeVoted: true}, m.Poll.Options[0])
	assert.Equal(t, PollOption{Answer: "B", Count: 3, MeVoted: false}, m.Poll.Options[1])
	assert.Equal(t, expiry.Unix(), m.Poll.Expires)
}

func TestParseMessageInteraction(t *testing.T) {
	m, err := ParseMessage([]byte(`{
		"id": "100", "channel_id": "1",
		"author": {"id": "bot", "username": "bridge"},
		"interaction": {"name": "roll", "user": {"username": "ada"}}
	}`))
	require.NoError(t, err)
	require.NotNil(t, m.Interact)
	assert.Equal(t, "roll", m.Interact.Command)
	assert.Equal(t, "ada", m.Interact.Username)
}

func TestParseMessagesList(t *testing.T) {
	msgs, err := ParseMessages([]byte(`[
		{"id": "2", "channel_id": "1", "author": {"id": "u1", "username": "ada"}},
		{"id": "1", "channel_id": "1", "author": {"id": "u2", "username": "bea"}}
	]`))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "2", msgs[0].ID)
	assert.Equal(t, "bea", msgs[1].Username)
}

func TestParseMessageBadJSON(t *testing.T) {
	_, err := ParseMessage([]byte(`{`))
	assert.Error(t, err)
}
