package api

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/motorbank-core/internal/driver"
	"github.com/nerrad567/motorbank-core/internal/infrastructure/logging"
	"github.com/nerrad567/motorbank-core/internal/motor"
	"github.com/nerrad567/motorbank-core/internal/protocol"
)

func dialWS(t *testing.T, d *fakeDriver) (*Server, *websocket.Conn) {
	t.Helper()

	srv, h := testServer(t, d)
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	waitFor(t, func() bool { return srv.hub.ClientCount() == 1 })
	return srv, conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

type wsReply struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, conn *websocket.Conn) wsReply {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply wsReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	return reply
}

func subscribe(t *testing.T, conn *websocket.Conn, channels ...string) {
	t.Helper()
	payload, _ := json.Marshal(WSSubscribePayload{Channels: channels}) //nolint:errcheck // static
	send(t, conn, `{"type":"subscribe","id":"s1","payload":`+string(payload)+`}`)
	if reply := read(t, conn); reply.Type != WSTypeResponse || reply.ID != "s1" {
		t.Fatalf("subscribe reply = %+v", reply)
	}
}

func TestWebSocket_Ping(t *testing.T) {
	_, conn := dialWS(t, newFakeDriver())

	send(t, conn, `{"type":"ping","id":"p1"}`)
	if reply := read(t, conn); reply.Type != WSTypePong || reply.ID != "p1" {
		t.Errorf("reply = %+v", reply)
	}
}

func TestWebSocket_InvalidMessages(t *testing.T) {
	_, conn := dialWS(t, newFakeDriver())

	send(t, conn, `not json`)
	if reply := read(t, conn); reply.Type != WSTypeError {
		t.Errorf("reply = %+v", reply)
	}

	send(t, conn, `{"type":"dance","id":"d1"}`)
	if reply := read(t, conn); reply.Type != WSTypeError || reply.ID != "d1" {
		t.Errorf("reply = %+v", reply)
	}
}

func TestWebSocket_StateBroadcast(t *testing.T) {
	srv, conn := dialWS(t, newFakeDriver())
	subscribe(t, conn, ChannelMotorState)

	status := driver.Status{Number: 3, Name: "Skylight", State: motor.Opening, Label: "Opening"}
	// Events are not subscribed and must not arrive.
	srv.hub.MotorChanged(status, motor.CommandEvent{Index: 2, Event: motor.Event{Kind: motor.Opening}})
	srv.hub.MotorChanged(status, motor.RawStateChanged{Index: 2, Previous: motor.Close, State: motor.Opening, Origin: motor.OriginIntent})

	reply := read(t, conn)
	if reply.Type != WSTypeEvent || reply.EventType != ChannelMotorState {
		t.Fatalf("reply = %+v", reply)
	}
	var payload MotorStatePayload
	if err := json.Unmarshal(reply.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Number != 3 || payload.State != motor.Opening || payload.Previous != motor.Close || payload.Origin != "intent" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestWebSocket_Unsubscribe(t *testing.T) {
	srv, conn := dialWS(t, newFakeDriver())
	subscribe(t, conn, ChannelConnection, ChannelFeedback)

	send(t, conn, `{"type":"unsubscribe","id":"u1","payload":{"channels":["connection.changed"]}}`)
	if reply := read(t, conn); reply.ID != "u1" {
		t.Fatalf("reply = %+v", reply)
	}

	srv.hub.ConnectionChanged(false)
	srv.hub.FeedbackReceived(protocol.NewBatch(map[motor.Index]motor.State{0: motor.Open}), errors.New("line 2 unparseable"))

	reply := read(t, conn)
	if reply.EventType != ChannelFeedback {
		t.Fatalf("reply = %+v", reply)
	}
	var payload FeedbackPayload
	if err := json.Unmarshal(reply.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.States[1] != motor.Open || payload.Error == "" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestWebSocket_Command(t *testing.T) {
	d := newFakeDriver()
	_, conn := dialWS(t, d)

	send(t, conn, `{"type":"command","id":"c1","payload":{"command":"Stop2"}}`)
	if reply := read(t, conn); reply.Type != WSTypeResponse || reply.ID != "c1" {
		t.Fatalf("reply = %+v", reply)
	}

	send(t, conn, `{"type":"command","id":"c2","payload":{"number":6,"action":"open"}}`)
	if reply := read(t, conn); reply.Type != WSTypeResponse {
		t.Fatalf("reply = %+v", reply)
	}

	calls := d.Calls()
	if len(calls) != 2 || calls[0] != "ws:Stop2" || calls[1] != "ws:open/6" {
		t.Errorf("calls = %v", calls)
	}

	d.SetErr(protocol.ErrInvalidCommand)
	send(t, conn, `{"type":"command","id":"c3","payload":{"command":"Bogus"}}`)
	if reply := read(t, conn); reply.Type != WSTypeError || reply.ID != "c3" {
		t.Errorf("reply = %+v", reply)
	}
}

func TestHub_UnregisterOnce(t *testing.T) {
	hub := NewHub(testWSConfig(), logging.Discard(), nil)
	client := &WSClient{hub: hub, send: make(chan []byte, 1), subscriptions: map[string]struct{}{}}

	hub.Register(client)
	hub.Unregister(client)
	hub.Unregister(client) // must not close send twice
	hub.closeAll()

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount = %d", hub.ClientCount())
	}
	// Sending to a departed client is dropped silently.
	client.trySend([]byte("x"))
}
