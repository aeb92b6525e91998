package bridge

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparklost/spacebar-bridge/internal/event"
)

func newTestOrchestrator() (*Orchestrator, *fakeGateway, *fakeGateway, *fakeRest, *fakeRest) {
	gwA := &fakeGateway{name: "Discord", myID: "bot_a"}
	gwB := &fakeGateway{name: "Spacebar", myID: "bot_b"}
	restA := &fakeRest{}
	restB := &fakeRest{}
	storeA := newMemStore()
	storeB := newMemStore()

	o := &Orchestrator{
		GatewayA: gwA,
		GatewayB: gwB,
		DirectionAB: NewDirection("discord>spacebar", gwA, restB, storeA, storeB,
			map[string]string{"CA": "CB"}, "guildB", "cdn-a.example"),
		DirectionBA: NewDirection("spacebar>discord", gwB, restA, storeB, storeA,
			map[string]string{"CB": "CA"}, "guildA", "cdn-b.example"),
		StoreA: storeA,
		StoreB: storeB,
	}
	return o, gwA, gwB, restA, restB
}

func TestOrchestratorRelaysBothDirections(t *testing.T) {
	o, gwA, gwB, restA, restB := newTestOrchestrator()

	gwA.events = []event.Event{{Type: event.MessageCreate, Message: event.Message{
		ID: "100", ChannelID: "CA", UserID: "u1", Username: "ada", Content: "from A",
	}}}
	gwB.events = []event.Event{{Type: event.MessageCreate, Message: event.Message{
		ID: "300", ChannelID: "CB", UserID: "u9", Username: "bea", Content: "from B",
	}}}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, o.Run(ctx))

	require.Len(t, restB.calls, 1)
	assert.Equal(t, "from A", restB.calls[0].embeds[0].Description)
	require.Len(t, restA.calls, 1)
	assert.Equal(t, "from B", restA.calls[0].embeds[0].Description)
}

func TestOrchestratorCreatesPairTables(t *testing.T) {
	o, _, _, _, _ := newTestOrchestrator()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, o.Run(ctx))

	storeA := o.StoreA.(*memStore)
	storeB := o.StoreB.(*memStore)
	assert.Contains(t, storeA.pairs, "pair_CA_CB")
	assert.Contains(t, storeB.pairs, "pair_CB_CA")
}

func TestOrchestratorFatalGatewayError(t *testing.T) {
	o, gwA, _, _, _ := newTestOrchestrator()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(150 * time.Millisecond)
		gwA.setErr(fmt.Errorf("Discord token is invalid"))
	}()

	err := o.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token is invalid")
}
