package gateway

import (
	"encoding/json"

	"github.com/sparklost/spacebar-bridge/internal/event"
)

type readyPayload struct {
	ResumeGatewayURL string `json:"resume_gateway_url"`
	SessionID        string `json:"session_id"`
	User             struct {
		ID string `json:"id"`
	} `json:"user"`
}

type rawDelete struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
}

type rawReactionUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Nick       string `json:"nick"`
}

type rawReaction struct {
	UserID    string `json:"user_id"`
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
	Member    *struct {
		User *rawReactionUser `json:"user"`
	} `json:"member"`
	Emoji struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	} `json:"emoji"`
}

type rawReactionMany struct {
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
	MessageID string `json:"message_id"`
	Reactions []struct {
		Emoji struct {
			Name string `json:"name"`
			ID   string `json:"id"`
		} `json:"emoji"`
		Users []string `json:"users"`
	} `json:"reactions"`
}

// normalizeDispatch translates one dispatch payload into zero or more
// buffered events. Unknown dispatch types yield nothing.
func normalizeDispatch(t string, d json.RawMessage) ([]event.Event, error) {
	switch t {
	case "MESSAGE_CREATE", "MESSAGE_UPDATE":
		m, err := event.ParseMessage(d)
		if err != nil {
			return nil, err
		}
		typ := event.MessageCreate
		if t == "MESSAGE_UPDATE" {
			typ = event.MessageUpdate
		}
		return []event.Event{{Type: typ, Message: m}}, nil

	case "MESSAGE_DELETE":
		var raw rawDelete
		if err := json.Unmarshal(d, &raw); err != nil {
			return nil, err
		}
		return []event.Event{{Type: event.MessageDelete, Message: event.Message{
			ID:        raw.ID,
			ChannelID: raw.ChannelID,
			GuildID:   raw.GuildID,
		}}}, nil

	case "MESSAGE_REACTION_ADD", "MESSAGE_REACTION_REMOVE":
		var raw rawReaction
		if err := json.Unmarshal(d, &raw); err != nil {
			return nil, err
		}
		typ := event.MessageReactionAdd
		if t == "MESSAGE_REACTION_REMOVE" {
			typ = event.MessageReactionRemove
		}
		m := event.Message{
			ID:        raw.MessageID,
			ChannelID: raw.ChannelID,
			GuildID:   raw.GuildID,
			UserID:    raw.UserID,
			Emoji:     raw.Emoji.Name,
			EmojiID:   raw.Emoji.ID,
		}
		// Discord nests the reacting user under member; Spacebar sends
		// only the top-level user_id.
		if raw.Member != nil && raw.Member.User != nil {
			m.UserID = raw.Member.User.ID
			m.Username = raw.Member.User.Username
			m.GlobalName = raw.Member.User.GlobalName
			m.Nick = raw.Member.User.Nick
		}
		return []event.Event{{Type: typ, Message: m}}, nil

	case "MESSAGE_REACTION_ADD_MANY":
		var raw rawReactionMany
		if err := json.Unmarshal(d, &raw); err != nil {
			return nil, err
		}
		var events []event.Event
		for _, r := range raw.Reactions {
			for _, userID := range r.Users {
				events = append(events, event.Event{Type: event.MessageReactionAdd, Message: event.Message{
					ID:        raw.MessageID,
					ChannelID: raw.ChannelID,
					GuildID:   raw.GuildID,
					UserID:    userID,
					Emoji:     r.Emoji.Name,
					EmojiID:   r.Emoji.ID,
				}})
			}
		}
		return events, nil
	}
	return nil, nil
}
