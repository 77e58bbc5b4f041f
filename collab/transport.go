package collab

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// The process-level transport. One websocket per session: the client
// sends its name within the auth timeout, the server replies with the
// bootstrap block `role\nversion\nbyte-length\ndocument`, then command
// lines flow in and deltas and query responses flow out, one message per
// block. Idle connections are kept alive with empty ping messages.

type ServerTransport struct {
	ctx    context.Context
	cancel context.CancelFunc

	server *Server

	httpServer *http.Server
	upgrader   *websocket.Upgrader

	url string
}

// NewServerTransport listens on `address` (for example "127.0.0.1:0")
// and serves sessions for `server`. The websocket url is the transport
// identifier printed at startup.
func NewServerTransport(ctx context.Context, server *Server, address string) (*ServerTransport, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	transport := &ServerTransport{
		ctx:    cancelCtx,
		cancel: cancel,
		server: server,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		url: fmt.Sprintf("ws://%s", listener.Addr()),
	}
	transport.httpServer = &http.Server{
		Handler: http.HandlerFunc(transport.handle),
		BaseContext: func(net.Listener) context.Context {
			return cancelCtx
		},
	}

	go func() {
		defer cancel()
		transport.httpServer.Serve(listener)
	}()
	go func() {
		select {
		case <-cancelCtx.Done():
		case <-server.Done():
		}
		transport.httpServer.Close()
	}()

	return transport, nil
}

func (self *ServerTransport) Url() string {
	return self.url
}

func (self *ServerTransport) Close() {
	self.cancel()
}

func (self *ServerTransport) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := self.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Infof("[t]upgrade error = %s\n", err)
		return
	}
	defer ws.Close()

	settings := self.server.settings

	// handshake: the first message is the client name
	ws.SetReadDeadline(time.Now().Add(settings.AuthTimeout))
	_, nameBytes, err := ws.ReadMessage()
	if err != nil {
		glog.Infof("[t]handshake error = %s\n", err)
		return
	}
	user := strings.TrimSpace(string(nameBytes))

	session, err := self.server.registry.Admit(user, settings.SendBufferSize)
	if err != nil {
		glog.Infof("[t]admit %s error = %s\n", user, err)
		refusal := ResultUnauthorised
		if err == ErrRegistryFull {
			refusal = "Reject FULL"
		}
		ws.SetWriteDeadline(time.Now().Add(settings.WriteTimeout))
		ws.WriteMessage(websocket.TextMessage, []byte(refusal))
		return
	}
	glog.V(2).Infof("[t]admit %s (%s)\n", user, session.sessionId)

	version, content := self.server.bootstrapState()
	bootstrap := fmt.Sprintf("%s\n%d\n%d\n%s", session.role, version, len(content), content)
	ws.SetWriteDeadline(time.Now().Add(settings.WriteTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, []byte(bootstrap)); err != nil {
		self.server.registry.Release(session)
		return
	}

	handleCtx, handleCancel := context.WithCancel(self.ctx)
	defer handleCancel()

	// write loop
	go func() {
		defer func() {
			handleCancel()
			ws.Close()
		}()

		for {
			select {
			case <-handleCtx.Done():
				return
			case message := <-session.send:
				ws.SetWriteDeadline(time.Now().Add(settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
					glog.Infof("[t]%s-> error = %s\n", user, err)
					return
				}
				glog.V(2).Infof("[t]%s->\n", user)
			case <-time.After(settings.PingTimeout):
				ws.SetWriteDeadline(time.Now().Add(settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.TextMessage, make([]byte, 0)); err != nil {
					return
				}
			}
		}
	}()

	// read loop. The write loop closes the socket on exit, which unblocks
	// the read here.
	for {
		ws.SetReadDeadline(time.Time{})
		_, message, err := ws.ReadMessage()
		if err != nil {
			// disconnect
			break
		}
		line := strings.TrimRight(string(message), "\r\n")
		if line == "" {
			continue
		}
		if done := self.handleLine(session, line); done {
			break
		}
	}

	self.server.registry.Release(session)
	if err := self.server.WriteSnapshot(); err != nil {
		glog.Infof("[t]snapshot error = %s\n", err)
	}
	glog.V(2).Infof("[t]release %s (%s)\n", user, session.sessionId)
}

// handleLine answers queries inline and queues edits for the next batch.
// Returns true when the session asked to disconnect.
func (self *ServerTransport) handleLine(session *session, line string) bool {
	word, _, _ := strings.Cut(line, " ")
	switch CommandKind(word) {
	case CommandQueryDoc:
		self.reply(session, fmt.Sprintf("DOC?\n%s\n", self.server.QueryDoc()))
	case CommandQueryPerm:
		self.reply(session, fmt.Sprintf("PERM?\n%s\n", session.role))
	case CommandQueryLog:
		self.reply(session, fmt.Sprintf("LOG?\n%s", self.server.QueryLog()))
	case CommandDisconnect:
		return true
	default:
		self.server.Enqueue(session.user, line)
	}
	return false
}

func (self *ServerTransport) reply(session *session, message string) {
	select {
	case session.send <- []byte(message):
	default:
		glog.Infof("[t]send buffer full, dropped reply for %s\n", session.user)
	}
}

type ClientSettings struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

func DefaultClientSettings() *ClientSettings {
	return &ClientSettings{
		HandshakeTimeout: 2 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// Client is one editor connection: dial, authenticate by name, then send
// command lines and receive deltas and query responses.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	ws *websocket.Conn

	user    string
	role    string
	version uint64
	doc     string

	receive chan string

	settings *ClientSettings
}

func DialWithDefaults(ctx context.Context, url string, user string) (*Client, error) {
	return Dial(ctx, url, user, DefaultClientSettings())
}

func Dial(ctx context.Context, url string, user string, settings *ClientSettings) (*Client, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: settings.HandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	success := false
	defer func() {
		if !success {
			ws.Close()
		}
	}()

	ws.SetWriteDeadline(time.Now().Add(settings.HandshakeTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, []byte(user)); err != nil {
		return nil, err
	}
	ws.SetReadDeadline(time.Now().Add(settings.HandshakeTimeout))
	_, message, err := ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	role, version, doc, err := parseBootstrap(string(message))
	if err != nil {
		return nil, err
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	client := &Client{
		ctx:      cancelCtx,
		cancel:   cancel,
		ws:       ws,
		user:     user,
		role:     role,
		version:  version,
		doc:      doc,
		receive:  make(chan string, 32),
		settings: settings,
	}
	go client.run()

	success = true
	return client, nil
}

func parseBootstrap(message string) (string, uint64, string, error) {
	if strings.HasPrefix(message, "Reject ") {
		return "", 0, "", fmt.Errorf("admission refused: %s", message)
	}
	parts := strings.SplitN(message, "\n", 4)
	if len(parts) != 4 {
		return "", 0, "", fmt.Errorf("malformed bootstrap")
	}
	role := parts[0]
	version, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return "", 0, "", fmt.Errorf("malformed bootstrap version")
	}
	length, err := strconv.Atoi(parts[2])
	if err != nil || len(parts[3]) < length {
		return "", 0, "", fmt.Errorf("malformed bootstrap length")
	}
	return role, version, parts[3][:length], nil
}

func (self *Client) run() {
	defer func() {
		self.cancel()
		close(self.receive)
		self.ws.Close()
	}()

	for {
		select {
		case <-self.ctx.Done():
			return
		default:
		}
		self.ws.SetReadDeadline(time.Time{})
		_, message, err := self.ws.ReadMessage()
		if err != nil {
			return
		}
		if len(message) == 0 {
			// ping
			continue
		}
		select {
		case self.receive <- string(message):
		case <-self.ctx.Done():
			return
		}
	}
}

func (self *Client) User() string {
	return self.user
}

func (self *Client) Role() string {
	return self.role
}

func (self *Client) Version() uint64 {
	return self.version
}

// InitialDocument is the flattened document from the bootstrap block.
func (self *Client) InitialDocument() string {
	return self.doc
}

// Receive yields deltas and query responses. Closed on disconnect.
func (self *Client) Receive() <-chan string {
	return self.receive
}

func (self *Client) Send(line string) error {
	self.ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
	return self.ws.WriteMessage(websocket.TextMessage, []byte(line))
}

func (self *Client) Close() {
	self.cancel()
	self.ws.Close()
}
