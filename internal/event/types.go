// Package event defines the normalized gateway event model shared by the
// gateway client, the formatter and the relay loops.
package event

// Type tags a normalized gateway event.
type Type string

const (
	MessageCreate         Type = "MESSAGE_CREATE"
	MessageUpdate         Type = "MESSAGE_UPDATE"
	MessageDelete         Type = "MESSAGE_DELETE"
	MessageReactionAdd    Type = "MESSAGE_REACTION_ADD"
	MessageReactionRemove Type = "MESSAGE_REACTION_REMOVE"
)

// Event is one normalized gateway dispatch, ready for the relay loop.
type Event struct {
	Type    Type
	Message Message
}

// Mention is a user referenced in message content.
type Mention struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Embed is a rendered-down embed or attachment. Attachments carry no
// MainURL; real embeds do.
type Embed struct {
	Type    string `json:"type,omitempty"`
	URL     string `json:"url,omitempty"`
	MainURL string `json:"-"`
	Hidden  bool   `json:"-"`
}

// Sticker holds the subset of sticker data the formatter renders.
type Sticker struct {
	Name       string `json:"name"`
	FormatType int    `json:"format_type"`
}

// PollOption is one poll answer with its running tally.
type PollOption struct {
	Answer  string
	Count   int
	MeVoted bool
}

// Poll is a normalized message poll. Expires is a unix timestamp.
type Poll struct {
	Question string
	Options  []PollOption
	Expires  int64
}

// Interaction describes the slash command a message responds to.
type Interaction struct {
	Username string
	Command  string
}

// Message is the flattened message payload placed in the event buffer.
// Reaction events reuse it with only the identity, emoji and id fields set.
type Message struct {
	ID        string
	ChannelID string
	GuildID   string

	UserID     string
	Username   string
	GlobalName string
	Nick       string
	AvatarID   string

	Content  string
	Mentions []Mention
	Embeds   []Embed
	Stickers []Sticker
	Poll     *Poll
	Interact *Interaction

	Referenced *Message

	Emoji   string
	EmojiID string
}
