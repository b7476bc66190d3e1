package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/codeduel/duel-backend/internal/websocket"
	"github.com/codeduel/duel-backend/pkg/distributed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type localFrame struct {
	UserID  string
	Type    string
	Payload interface{}
	Raw     []byte
}

// fakeConnections 이 인스턴스의 연결 흉내
type fakeConnections struct {
	mu        sync.Mutex
	connected map[string]bool
	frames    []localFrame
}

func newFakeConnections(users ...string) *fakeConnections {
	c := &fakeConnections{connected: make(map[string]bool)}
	for _, u := range users {
		c.connected[u] = true
	}
	return c
}

func (c *fakeConnections) IsConnected(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected[userID]
}

func (c *fakeConnections) SendToUser(userID string, msgType string, payload interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, localFrame{UserID: userID, Type: msgType, Payload: payload})
}

func (c *fakeConnections) SendRaw(userID string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, localFrame{UserID: userID, Raw: data})
}

func (c *fakeConnections) setConnected(userID string, connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected[userID] = connected
}

func (c *fakeConnections) sent(userID string) []localFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []localFrame
	for _, f := range c.frames {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	return out
}

type deliveryCall struct {
	Instance string
	UserID   string
	Payload  []byte
}

type fakeRemote struct {
	mu    sync.Mutex
	calls []deliveryCall
	err   error
}

func (r *fakeRemote) Deliver(ctx context.Context, instanceID, userID string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, deliveryCall{Instance: instanceID, UserID: userID, Payload: payload})
	return r.err
}

func TestRouter_PrefersLocalConnection(t *testing.T) {
	local := newFakeConnections("alice")
	remote := &fakeRemote{}
	router := NewRouter(local, nil, remote, "instance-a", nil)

	router.Send(context.Background(), "alice", websocket.TypePong, nil)

	frames := local.sent("alice")
	require.Len(t, frames, 1)
	assert.Equal(t, websocket.TypePong, frames[0].Type)
	assert.Empty(t, remote.calls)
}

func TestRouter_DeliversToOwningInstance(t *testing.T) {
	client, _ := setupRedisClient(t)
	ctx := context.Background()

	other := distributed.NewSessionDirectory(client, "instance-b")
	require.NoError(t, other.Register(ctx, "bob"))

	local := newFakeConnections()
	remote := &fakeRemote{}
	router := NewRouter(local, distributed.NewSessionDirectory(client, "instance-a"), remote, "instance-a", nil)

	router.Send(ctx, "bob", websocket.TypeQueueLeft, websocket.QueuePayload{Message: "Left matchmaking queue"})

	require.Len(t, remote.calls, 1)
	assert.Equal(t, "instance-b", remote.calls[0].Instance)
	assert.Equal(t, "bob", remote.calls[0].UserID)
	assert.JSONEq(t, `{"type":"queue_left","payload":{"message":"Left matchmaking queue"}}`, string(remote.calls[0].Payload))
	assert.Empty(t, local.sent("bob"))
}

func TestRouter_DropsForOfflineUser(t *testing.T) {
	client, _ := setupRedisClient(t)
	ctx := context.Background()

	directory := distributed.NewSessionDirectory(client, "instance-a")
	// 디렉터리에는 이 인스턴스로 남아 있지만 연결은 이미 끊김
	require.NoError(t, directory.Register(ctx, "carol"))

	remote := &fakeRemote{err: errors.New("should not be called")}
	router := NewRouter(newFakeConnections(), directory, remote, "instance-a", nil)

	router.Send(ctx, "nobody", websocket.TypePong, nil)
	router.Send(ctx, "carol", websocket.TypePong, nil)
	assert.Empty(t, remote.calls)
}

func TestRouter_DeliverLocal(t *testing.T) {
	local := newFakeConnections("alice")
	router := NewRouter(local, nil, nil, "instance-a", nil)

	data, err := json.Marshal(map[string]string{"type": "pong"})
	require.NoError(t, err)
	router.DeliverLocal("alice", data)

	frames := local.sent("alice")
	require.Len(t, frames, 1)
	assert.Equal(t, data, frames[0].Raw)
}
