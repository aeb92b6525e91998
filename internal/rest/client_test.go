package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateNonceMonotonic(t *testing.T) {
	prev, err := strconv.ParseInt(generateNonce(), 10, 64)
	require.NoError(t, err)
	for i := 0; i < 1000; i++ {
		n, err := strconv.ParseInt(generateNonce(), 10, 64)
		require.NoError(t, err)
		assert.Greater(t, n, prev)
		prev = n
	}
}

func TestGetGatewayURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v9/gateway", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"url": "wss://gateway.example"})
	}))
	defer srv.Close()

	c := NewClient("Discord", srv.URL, "tok")
	u, err := c.GetGatewayURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "wss://gateway.example", u)
}

func TestGetMessagesQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[{"id":"1","channel_id":"2","content":"hi","author":{"id":"u1","username":"ada"}}]`))
	}))
	defer srv.Close()

	c := NewClient("Discord", srv.URL, "tok")
	msgs, err := c.GetMessages(context.Background(), "2", 0, GetMessagesOptions{})
	require.NoError(t, err)
	// Absent before/after/around leave only limit in the query.
	assert.Equal(t, "limit=50", gotQuery)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "ada", msgs[0].Username)

	_, err = c.GetMessages(context.Background(), "2", 10, GetMessagesOptions{Before: "99"})
	require.NoError(t, err)
	assert.Equal(t, "limit=10&before=99", gotQuery)
}

func TestSendMessage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v9/channels/42/messages", r.URL.Path)
		assert.Equal(t, "Bot tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"id":"200"}`))
	}))
	defer srv.Close()

	c := NewClient("Spacebar", srv.URL, "tok")
	id, err := c.SendMessage(context.Background(), "42", "", SendMessageOptions{
		ReplyID:        "55",
		ReplyChannelID: "42",
		ReplyGuildID:   "7",
		ReplyPing:      false,
		Embeds:         []Embed{{Type: "rich", Author: &EmbedAuthor{Name: "ada"}, Description: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "200", id)

	ref := got["message_reference"].(map[string]any)
	assert.Equal(t, "55", ref["message_id"])
	assert.Equal(t, "42", ref["channel_id"])
	assert.Equal(t, "7", ref["guild_id"])

	allowed := got["allowed_mentions"].(map[string]any)
	assert.Equal(t, false, allowed["replied_user"])
	assert.ElementsMatch(t, []any{"users", "roles", "everyone"}, allowed["parse"])

	assert.NotEmpty(t, got["nonce"])
}

func TestSendMessageNoReference(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"id":"201"}`))
	}))
	defer srv.Close()

	c := NewClient("Spacebar", srv.URL, "tok")
	_, err := c.SendMessage(context.Background(), "42", "hello", SendMessageOptions{ReplyPing: true})
	require.NoError(t, err)

	_, hasRef := got["message_reference"]
	assert.False(t, hasRef)
	_, hasAllowed := got["allowed_mentions"]
	assert.False(t, hasAllowed)
}

func TestSendMessageErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient("Spacebar", srv.URL, "tok")
	id, err := c.SendMessage(context.Background(), "42", "x", SendMessageOptions{})
	assert.Error(t, err)
	assert.Equal(t, "", id)
}

func TestSendUpdateMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PATCH", r.Method)
		assert.Equal(t, "/api/v9/channels/42/messages/200", r.URL.Path)
	}))
	defer srv.Close()

	c := NewClient("Spacebar", srv.URL, "tok")
	err := c.SendUpdateMessage(context.Background(), "42", "200", "", []Embed{{Type: "rich", Description: "hello"}})
	require.NoError(t, err)
}

func TestSendDeleteMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DELETE", r.Method)
		assert.Equal(t, "/api/v9/channels/42/messages/200", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient("Spacebar", srv.URL, "tok")
	require.NoError(t, c.SendDeleteMessage(context.Background(), "42", "200"))
}

func TestReactions(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.RequestURI())
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient("Discord", srv.URL, "tok")
	require.NoError(t, c.SendReaction(context.Background(), "1", "2", "👍"))
	require.NoError(t, c.RemoveReaction(context.Background(), "1", "2", "👍"))

	require.Len(t, paths, 2)
	assert.Contains(t, paths[0], "PUT /api/v9/channels/1/messages/2/reactions/")
	assert.Contains(t, paths[0], "/%40me")
	assert.Contains(t, paths[1], "DELETE /api/v9/channels/1/messages/2/reactions/")
	assert.Contains(t, paths[1], "/0/%40me")
}
