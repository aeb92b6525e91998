package event

import (
	"encoding/json"
	"time"
)

// rawMessage mirrors the wire shape of MESSAGE_CREATE / MESSAGE_UPDATE
// payloads. Every field is optional: Spacebar omits several of them.
type rawMessage struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
	Content   string `json:"content"`
	Author    struct {
		ID         string `json:"id"`
		Username   string `json:"username"`
		GlobalName string `json:"global_name"`
		Avatar     string `json:"avatar"`
	} `json:"author"`
	Member struct {
		Nick string `json:"nick"`
	} `json:"member"`
	Mentions []Mention `json:"mentions"`
	Embeds   []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"embeds"`
	Attachments []struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
	} `json:"attachments"`
	StickerItems []Sticker `json:"sticker_items"`
	Poll         *rawPoll  `json:"poll"`
	Interaction  *struct {
		Name string `json:"name"`
		User struct {
			Username string `json:"username"`
		} `json:"user"`
	} `json:"interaction"`
	Referenced *rawMessage `json:"referenced_message"`
}

type rawPoll struct {
	Question struct {
		Text string `json:"text"`
	} `json:"question"`
	Answers []struct {
		AnswerID  int `json:"answer_id"`
		PollMedia struct {
			Text string `json:"text"`
		} `json:"poll_media"`
	} `json:"answers"`
	Results struct {
		AnswerCounts []struct {
			ID      int  `json:"id"`
			Count   int  `json:"count"`
			MeVoted bool `json:"me_voted"`
		} `json:"answer_counts"`
	} `json:"results"`
	Expiry string `json:"expiry"`
}

// ParseMessage flattens a raw MESSAGE_CREATE / MESSAGE_UPDATE payload into
// the normalized Message shape.
func ParseMessage(data []byte) (Message, error) {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Message{}, err
	}
	return flatten(&raw), nil
}

// ParseMessages flattens a REST message list response.
func ParseMessages(data []byte) ([]Message, error) {
	var raws []rawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(raws))
	for i := range raws {
		msgs = append(msgs, flatten(&raws[i]))
	}
	return msgs, nil
}

func flatten(raw *rawMessage) Message {
	m := Message{
		ID:         raw.ID,
		ChannelID:  raw.ChannelID,
		GuildID:    raw.GuildID,
		UserID:     raw.Author.ID,
		Username:   raw.Author.Username,
		GlobalName: raw.Author.GlobalName,
		Nick:       raw.Member.Nick,
		AvatarID:   raw.Author.Avatar,
		Content:    raw.Content,
		Mentions:   raw.Mentions,
		Stickers:   raw.StickerItems,
	}

	// Real embeds carry MainURL; attachments are rendered as embeds
	// without one, which is how the formatter tells them apart.
	for _, e := range raw.Embeds {
		m.Embeds = append(m.Embeds, Embed{Type: e.Type, URL: e.URL, MainURL: e.URL})
	}
	for _, a := range raw.Attachments {
		m.Embeds = append(m.Embeds, Embed{Type: a.ContentType, URL: a.URL})
	}

	if raw.Poll != nil {
		m.Poll = flattenPoll(raw.Poll)
	}
	if raw.Interaction != nil {
		m.Interact = &Interaction{
			Username: raw.Interaction.User.Username,
			Command:  raw.Interaction.Name,
		}
	}
	if raw.Referenced != nil {
		ref := flatten(raw.Referenced)
		m.Referenced = &ref
	}
	return m
}

func flattenPoll(raw *rawPoll) *Poll {
	p := &Poll{Question: raw.Question.Text}
	counts := make(map[int]struct {
		count   int
		meVoted bool
	}, len(raw.Results.AnswerCounts))
	for _, c := range raw.Results.AnswerCounts {
		counts[c.ID] = struct {
			count   int
			meVoted bool
		}{c.Count, c.MeVoted}
	}
	for _, a := range raw.Answers {
		c := counts[a.AnswerID]
		p.Options = append(p.Options, PollOption{
			Answer:  a.PollMedia.Text,
			Count:   c.count,
			MeVoted: c.meVoted,
		})
	}
	if t, err := time.Parse(time.RFC3339, raw.Expiry); err == nil {
		p.Expires = t.Unix()
	}
	return p
}
