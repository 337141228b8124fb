package kvstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commandServer records every command array it receives and answers from a
// canned queue of responses.
func commandServer(t *testing.T, responses ...string) (*httptest.Server, *[][]string) {
	t.Helper()

	var commands [][]string
	calls := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var cmd []string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&cmd))
		commands = append(commands, cmd)

		w.Header().Set("Content-Type", "application/json")
		if calls < len(responses) {
			w.Write([]byte(responses[calls]))
		} else {
			w.Write([]byte(`{"result":null}`))
		}
		calls++
	}))
	t.Cleanup(server.Close)

	return server, &commands
}

func TestClient_LPushAndSAddAndExpire(t *testing.T) {
	server, commands := commandServer(t, `{"result":1}`, `{"result":1}`, `{"result":1}`)
	client := NewClient(server.URL, "secret")
	ctx := context.Background()

	require.NoError(t, client.LPush(ctx, "posts:tech", `{"external_id":"1"}`))
	require.NoError(t, client.SAdd(ctx, "posts:tech:seen-ids", "1"))
	require.NoError(t, client.Expire(ctx, "posts:tech:seen-ids", 259200))

	require.Len(t, *commands, 3)
	assert.Equal(t, []string{"LPUSH", "posts:tech", `{"external_id":"1"}`}, (*commands)[0])
	assert.Equal(t, []string{"SADD", "posts:tech:seen-ids", "1"}, (*commands)[1])
	assert.Equal(t, []string{"EXPIRE", "posts:tech:seen-ids", "259200"}, (*commands)[2])
}

func TestClient_SIsMember(t *testing.T) {
	server, _ := commandServer(t, `{"result":1}`, `{"result":0}`)
	client := NewClient(server.URL, "secret")

	member, err := client.SIsMember(context.Background(), "k", "a")
	require.NoError(t, err)
	assert.True(t, member)

	member, err = client.SIsMember(context.Background(), "k", "b")
	require.NoError(t, err)
	assert.False(t, member)
}

func TestClient_LRange(t *testing.T) {
	server, commands := commandServer(t, `{"result":["one","two"]}`)
	client := NewClient(server.URL, "secret")

	entries, err := client.LRange(context.Background(), "posts:tech", 0, 49)

	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, entries)
	assert.Equal(t, []string{"LRANGE", "posts:tech", "0", "49"}, (*commands)[0])
}

func TestClient_GetMissingKey(t *testing.T) {
	server, _ := commandServer(t, `{"result":null}`)
	client := NewClient(server.URL, "secret")

	value, found, err := client.Get(context.Background(), "trends:tech")

	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "", value)
}

func TestClient_GetExistingKey(t *testing.T) {
	server, _ := commandServer(t, `{"result":"raw response text"}`)
	client := NewClient(server.URL, "secret")

	value, found, err := client.Get(context.Background(), "trends:tech")

	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "raw response text", value)
}

func TestClient_ErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"WRONGTYPE Operation against a key holding the wrong kind of value"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")

	err := client.Set(context.Background(), "k", "v")

	require.Error(t, err)
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "SET", storeErr.Command)
	assert.Equal(t, http.StatusBadRequest, storeErr.Status)
	assert.Contains(t, storeErr.Message, "WRONGTYPE")
}
