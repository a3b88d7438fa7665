package transfer

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// rendezvousMessage mirrors the rendezvous wire envelope for the test server.
type rendezvousMessage struct {
	Type      string `json:"type"`
	AppID     string `json:"appid,omitempty"`
	Side      string `json:"side,omitempty"`
	Nameplate string `json:"nameplate,omitempty"`
	Mailbox   string `json:"mailbox,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Body      string `json:"body,omitempty"`
	Mood      string `json:"mood,omitempty"`
	Error     string `json:"error,omitempty"`
}

// testRendezvous is a minimal in-process rendezvous server.
type testRendezvous struct {
	*httptest.Server

	mu         sync.Mutex
	nameplates int
	mailboxes  map[string]*testMailbox
}

type testMailbox struct {
	subscribers []*rdvClient
	backlog     []rendezvousMessage
}

type rdvClient struct {
	conn      *websocket.Conn
	side      string
	mailboxID string
	mu        sync.Mutex
}

func (c *rdvClient) write(msg rendezvousMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteJSON(msg)
}

func newTestRendezvous() *testRendezvous {
	ts := &testRendezvous{mailboxes: make(map[string]*testMailbox)}

	upgrader := websocket.Upgrader{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := &rdvClient{conn: conn}
		client.write(rendezvousMessage{Type: "welcome"})
		ts.serve(client)
	}))

	return ts
}

func (ts *testRendezvous) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.Server.URL, "http")
}

func (ts *testRendezvous) serve(client *rdvClient) {
	defer client.conn.Close()

	for {
		var msg rendezvousMessage
		if err := client.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "bind":
			client.side = msg.Side
			client.write(rendezvousMessage{Type: "ack"})
		case "allocate":
			ts.mu.Lock()
			ts.nameplates++
			nameplate := strconv.Itoa(ts.nameplates)
			ts.mu.Unlock()
			client.write(rendezvousMessage{Type: "allocated", Nameplate: nameplate})
		case "claim":
			client.write(rendezvousMessage{Type: "claimed", Mailbox: "mb-" + msg.Nameplate})
		case "open":
			client.mailboxID = msg.Mailbox
			ts.mu.Lock()
			mbox := ts.mailboxes[msg.Mailbox]
			if mbox == nil {
				mbox = &testMailbox{}
				ts.mailboxes[msg.Mailbox] = mbox
			}
			mbox.subscribers = append(mbox.subscribers, client)
			backlog := append([]rendezvousMessage(nil), mbox.backlog...)
			ts.mu.Unlock()
			for _, queued := range backlog {
				client.write(queued)
			}
		case "add":
			out := rendezvousMessage{
				Type:  "message",
				Side:  client.side,
				Phase: msg.Phase,
				Body:  msg.Body,
			}
			ts.mu.Lock()
			mbox := ts.mailboxes[client.mailboxID]
			var subs []*rdvClient
			if mbox != nil {
				mbox.backlog = append(mbox.backlog, out)
				subs = append(subs, mbox.subscribers...)
			}
			ts.mu.Unlock()
			for _, sub := range subs {
				sub.write(out)
			}
		case "release", "close":
			client.write(rendezvousMessage{Type: "ack"})
		}
	}
}

// testRelay is a minimal transit relay: it pairs connections that present
// the same token and splices them together.
type testRelay struct {
	ln      net.Listener
	mu      sync.Mutex
	waiting map[string]net.Conn
	done    chan struct{}
}

func newTestRelay() (*testRelay, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	r := &testRelay{
		ln:      ln,
		waiting: make(map[string]net.Conn),
		done:    make(chan struct{}),
	}
	go r.acceptLoop()
	return r, nil
}

func (r *testRelay) url() string {
	return "tcp://" + r.ln.Addr().String()
}

func (r *testRelay) close() {
	close(r.done)
	r.ln.Close()
}

func (r *testRelay) acceptLoop() {
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			return
		}
		go r.handle(conn)
	}
}

func (r *testRelay) handle(conn net.Conn) {
	line, err := readTokenLine(conn)
	if err != nil {
		conn.Close()
		return
	}

	r.mu.Lock()
	partner, ok := r.waiting[line]
	if ok {
		delete(r.waiting, line)
	} else {
		r.waiting[line] = conn
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	partner.Write([]byte("ok\n"))
	conn.Write([]byte("ok\n"))

	go func() {
		io.Copy(partner, conn)
		partner.Close()
	}()
	io.Copy(conn, partner)
	conn.Close()
}

func readTokenLine(conn net.Conn) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for sb.Len() < 128 {
		if _, err := conn.Read(buf); err != nil {
			return "", err
		}
		if buf[0] == '\n' {
			return sb.String(), nil
		}
		sb.WriteByte(buf[0])
	}
	return sb.String(), nil
}
