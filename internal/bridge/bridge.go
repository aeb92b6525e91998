// Package bridge runs the two symmetric relay loops between the
// endpoints and keeps the pair stores in sync with the mirrors.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/sparklost/spacebar-bridge/internal/event"
	"github.com/sparklost/spacebar-bridge/internal/format"
	"github.com/sparklost/spacebar-bridge/internal/metrics"
	"github.com/sparklost/spacebar-bridge/internal/pairstore"
	"github.com/sparklost/spacebar-bridge/internal/rest"
)

// Gateway is the slice of the gateway session a relay loop consumes.
type Gateway interface {
	PollEvent() (event.Event, bool)
	Ready() bool
	Running() bool
	MyID() string
	Name() string
	Err() error
}

// Rest is the slice of the REST client a relay loop drives on the
// target side.
type Rest interface {
	SendMessage(ctx context.Context, channelID, content string, opts rest.SendMessageOptions) (string, error)
	SendUpdateMessage(ctx context.Context, channelID, messageID, content string, embeds []rest.Embed) error
	SendDeleteMessage(ctx context.Context, channelID, messageID string) error
}

// Direction relays events from one endpoint's gateway to the other
// endpoint's REST API. Two of these run concurrently, one per direction.
type Direction struct {
	Label string

	Gateway Gateway
	Rest    Rest

	// Store maps this direction's source ids to mirrored target ids.
	// ReverseStore belongs to the opposite direction and resolves
	// replies to messages that originated over there.
	Store        pairstore.Store
	ReverseStore pairstore.Store

	Bridges       map[string]string
	TargetGuildID string
	CDNHost       string

	Roles    []format.Role
	Channels []format.Channel

	tracer trace.Tracer
}

func NewDirection(label string, gw Gateway, target Rest, store, reverse pairstore.Store, bridges map[string]string, targetGuildID, cdnHost string) *Direction {
	return &Direction{
		Label:         label,
		Gateway:       gw,
		Rest:          target,
		Store:         store,
		ReverseStore:  reverse,
		Bridges:       bridges,
		TargetGuildID: targetGuildID,
		CDNHost:       cdnHost,
		tracer:        otel.Tracer("spacebar-bridge/relay"),
	}
}

// Run drains the gateway buffer until the context is canceled or the
// gateway dies. A non-nil return is fatal for the whole process.
func (d *Direction) Run(ctx context.Context) error {
	slog.Info("bridge: relay loop started", "direction", d.Label)
	defer slog.Info("bridge: relay loop stopped", "direction", d.Label)
	for {
		for {
			e, ok := d.Gateway.PollEvent()
			if !ok {
				break
			}
			d.dispatch(ctx, e)
		}
		if err := d.Gateway.Err(); err != nil {
			return err
		}
		if !d.Gateway.Running() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (d *Direction) dispatch(ctx context.Context, e event.Event) {
	metrics.GatewayEventsTotal.WithLabelValues(d.Gateway.Name()).Inc()
	m := &e.Message

	if _, ok := d.Bridges[m.ChannelID]; !ok {
		metrics.DroppedTotal.WithLabelValues(d.Label, "unbridged").Inc()
		return
	}
	// Echo suppression: everything the bridge posts carries its own
	// user id on the other side.
	if m.UserID != "" && m.UserID == d.Gateway.MyID() {
		metrics.DroppedTotal.WithLabelValues(d.Label, "self").Inc()
		return
	}

	switch e.Type {
	case event.MessageCreate:
		d.relayCreate(ctx, m)
	case event.MessageUpdate:
		d.relayUpdate(ctx, m)
	case event.MessageDelete:
		d.relayDelete(ctx, m)
	case event.MessageReactionAdd, event.MessageReactionRemove:
		// Reserved: reaction mirroring is intentionally unimplemented.
	}
}

func (d *Direction) relayCreate(ctx context.Context, m *event.Message) {
	ctx, span := d.tracer.Start(ctx, "relay.create")
	defer span.End()

	tgtChannel := d.Bridges[m.ChannelID]
	pairID := pairstore.PairID(m.ChannelID, tgtChannel)

	var replyID string
	replyPing := false
	if m.Referenced != nil {
		var err error
		if m.Referenced.UserID == d.Gateway.MyID() {
			// The replied-to message is one of our own mirrors, so its
			// original lives on the target side under the reverse pair.
			replyID, err = d.ReverseStore.GetSource(ctx, pairstore.PairID(tgtChannel, m.ChannelID), m.Referenced.ID)
		} else {
			replyID, err = d.Store.GetTarget(ctx, pairID, m.Referenced.ID)
		}
		if err != nil {
			slog.Error("bridge: reply lookup failed", "direction", d.Label, "source_id", m.ID, "error", err)
		}
		for _, mention := range m.Referenced.Mentions {
			if mention.ID == d.Gateway.MyID() {
				replyPing = true
				break
			}
		}
	}

	targetID, err := d.Rest.SendMessage(ctx, tgtChannel, "", rest.SendMessageOptions{
		ReplyID:        replyID,
		ReplyChannelID: tgtChannel,
		ReplyGuildID:   d.TargetGuildID,
		ReplyPing:      replyPing,
		Embeds:         []rest.Embed{d.authorEmbed(m)},
	})
	if err != nil {
		slog.Error("bridge: create relay failed", "direction", d.Label, "source_id", m.ID, "error", err)
		metrics.RelayFailuresTotal.WithLabelValues(d.Label, "create").Inc()
		return
	}
	slog.Debug("bridge: relayed create", "direction", d.Label, "source_id", m.ID, "target_id", targetID, "author", AuthorName(m))

	if err := d.Store.AddPair(ctx, pairID, m.ID, targetID); err != nil {
		// The mirror stays up but can no longer be edited or deleted
		// through the bridge.
		slog.Error("bridge: pair insert failed", "direction", d.Label, "source_id", m.ID, "error", err)
	}
	metrics.RelayedTotal.WithLabelValues(d.Label, "create").Inc()
}

func (d *Direction) relayUpdate(ctx context.Context, m *event.Message) {
	tgtChannel := d.Bridges[m.ChannelID]
	pairID := pairstore.PairID(m.ChannelID, tgtChannel)

	targetID, err := d.Store.GetTarget(ctx, pairID, m.ID)
	if err != nil {
		slog.Error("bridge: update lookup failed", "direction", d.Label, "source_id", m.ID, "error", err)
		return
	}
	if targetID == "" {
		// Never mirrored (or evicted); nothing to edit.
		return
	}
	if err := d.Rest.SendUpdateMessage(ctx, tgtChannel, targetID, "", []rest.Embed{d.authorEmbed(m)}); err != nil {
		slog.Error("bridge: update relay failed", "direction", d.Label, "source_id", m.ID, "error", err)
		metrics.RelayFailuresTotal.WithLabelValues(d.Label, "update").Inc()
		return
	}
	slog.Debug("bridge: relayed update", "direction", d.Label, "source_id", m.ID, "target_id", targetID)
	metrics.RelayedTotal.WithLabelValues(d.Label, "update").Inc()
}

func (d *Direction) relayDelete(ctx context.Context, m *event.Message) {
	tgtChannel := d.Bridges[m.ChannelID]
	pairID := pairstore.PairID(m.ChannelID, tgtChannel)

	targetID, err := d.Store.GetTarget(ctx, pairID, m.ID)
	if err != nil {
		slog.Error("bridge: delete lookup failed", "direction", d.Label, "source_id", m.ID, "error", err)
		return
	}
	if targetID == "" {
		return
	}
	if err := d.Rest.SendDeleteMessage(ctx, tgtChannel, targetID); err != nil {
		slog.Error("bridge: delete relay failed", "direction", d.Label, "source_id", m.ID, "error", err)
		metrics.RelayFailuresTotal.WithLabelValues(d.Label, "delete").Inc()
	}
	// The source message is gone either way; the mapping is dead weight.
	if err := d.Store.DeletePair(ctx, pairID, m.ID); err != nil {
		slog.Error("bridge: pair delete failed", "direction", d.Label, "source_id", m.ID, "error", err)
	}
	slog.Debug("bridge: relayed delete", "direction", d.Label, "source_id", m.ID, "target_id", targetID)
	metrics.RelayedTotal.WithLabelValues(d.Label, "delete").Inc()
}

// authorEmbed frames the source message as a rich embed attributed to
// its original author.
func (d *Direction) authorEmbed(m *event.Message) rest.Embed {
	description := format.BuildMessage(m, d.Roles, d.Channels)
	if description == "" {
		description = "*Unknown message content*"
	}
	embed := rest.Embed{
		Type:        "rich",
		Description: description,
		Author: &rest.EmbedAuthor{
			Name: AuthorName(m),
		},
	}
	if u := AvatarURL(m, d.CDNHost); u != "" {
		embed.Author.IconURL = u
	}
	return embed
}

// AuthorName picks the best display name for a message author.
func AuthorName(m *event.Message) string {
	switch {
	case m.Nick != "":
		return m.Nick
	case m.GlobalName != "":
		return m.GlobalName
	case m.Username != "":
		return m.Username
	}
	return "Unknown"
}

// AvatarURL builds the CDN avatar URL for a message author, or "" when
// the author has no avatar.
func AvatarURL(m *event.Message, cdnHost string) string {
	if m.AvatarID == "" || cdnHost == "" {
		return ""
	}
	return fmt.Sprintf("https://%s/avatars/%s/%s.webp?size=80", cdnHost, m.UserID, m.AvatarID)
}
