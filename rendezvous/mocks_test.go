package rendezvous

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// testServer is a minimal in-process rendezvous server: enough of the wire
// protocol for two clients to allocate, claim, open, and exchange messages.
type testServer struct {
	*httptest.Server

	mu         sync.Mutex
	nameplates int
	mailboxes  map[string]*testMailbox
}

type testMailbox struct {
	subscribers []*testClient
	backlog     []wireMessage
}

type testClient struct {
	conn      *websocket.Conn
	side      string
	mailboxID string
	mu        sync.Mutex
}

func (c *testClient) write(msg wireMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteJSON(msg)
}

func newTestServer() *testServer {
	ts := &testServer{mailboxes: make(map[string]*testMailbox)}

	upgrader := websocket.Upgrader{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := &testClient{conn: conn}
		client.write(wireMessage{Type: "welcome"})
		ts.serve(client)
	}))

	return ts
}

// wsURL returns the ws:// URL of the test server.
func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.Server.URL, "http")
}

func (ts *testServer) serve(client *testClient) {
	defer client.conn.Close()

	for {
		var msg wireMessage
		if err := client.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "bind":
			client.side = msg.Side
			client.write(wireMessage{Type: "ack"})
		case "allocate":
			ts.mu.Lock()
			ts.nameplates++
			nameplate := strconv.Itoa(ts.nameplates)
			ts.mu.Unlock()
			client.write(wireMessage{Type: "allocated", Nameplate: nameplate})
		case "claim":
			client.write(wireMessage{Type: "claimed", Mailbox: "mb-" + msg.Nameplate})
		case "open":
			client.mailboxID = msg.Mailbox
			ts.mu.Lock()
			mbox := ts.mailboxes[msg.Mailbox]
			if mbox == nil {
				mbox = &testMailbox{}
				ts.mailboxes[msg.Mailbox] = mbox
			}
			mbox.subscribers = append(mbox.subscribers, client)
			backlog := append([]wireMessage(nil), mbox.backlog...)
			ts.mu.Unlock()
			for _, queued := range backlog {
				client.write(queued)
			}
		case "add":
			out := wireMessage{
				Type:  "message",
				Side:  client.side,
				Phase: msg.Phase,
				Body:  msg.Body,
			}
			ts.mu.Lock()
			mbox := ts.mailboxes[client.mailboxID]
			var subs []*testClient
			if mbox != nil {
				mbox.backlog = append(mbox.backlog, out)
				subs = append(subs, mbox.subscribers...)
			}
			ts.mu.Unlock()
			for _, sub := range subs {
				sub.write(out)
			}
		case "release", "close":
			client.write(wireMessage{Type: "ack"})
		}
	}
}
