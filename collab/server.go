package collab

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
)

type ServerSettings struct {
	// batch tick interval
	BroadcastInterval time.Duration

	RolesPath    string
	SnapshotPath string

	MaxSessions    int
	QueueMaxCount  int
	SendBufferSize int

	AuthTimeout  time.Duration
	PingTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultServerSettings() *ServerSettings {
	return &ServerSettings{
		BroadcastInterval: 500 * time.Millisecond,
		RolesPath:         "roles.txt",
		SnapshotPath:      "doc.md",
		MaxSessions:       100,
		QueueMaxCount:     4096,
		SendBufferSize:    32,
		AuthTimeout:       1 * time.Second,
		PingTimeout:       1 * time.Second,
		WriteTimeout:      5 * time.Second,
	}
}

// Server owns the document, the command queue, the session registry and
// the audit log, and runs the batch worker that turns queued commands
// into versioned deltas.
//
// Lock order: queue, document, registry, audit log. Any code path taking
// more than one takes them in that order.
type Server struct {
	ctx    context.Context
	cancel context.CancelFunc

	settings *ServerSettings

	queue    *commandQueue
	registry *sessionRegistry

	docLock sync.RWMutex
	doc     *Document

	auditLock sync.Mutex
	auditLog  []byte

	snapshotLock sync.Mutex

	log LogFunction
}

func NewServerWithDefaults(ctx context.Context) *Server {
	return NewServer(ctx, DefaultServerSettings())
}

func NewServer(ctx context.Context, settings *ServerSettings) *Server {
	cancelCtx, cancel := context.WithCancel(ctx)
	server := &Server{
		ctx:      cancelCtx,
		cancel:   cancel,
		settings: settings,
		queue:    newCommandQueue(settings.QueueMaxCount),
		registry: newSessionRegistry(newRoleStore(settings.RolesPath), settings.MaxSessions),
		doc:      NewDocument(),
		log:      LogFn(LogLevelDebug, "batch"),
	}
	go server.run()
	return server
}

func (self *Server) run() {
	defer self.cancel()

	for {
		select {
		case <-self.ctx.Done():
			return
		case <-time.After(self.settings.BroadcastInterval):
		}
		self.processBatch()
	}
}

// Enqueue queues one command line for the next batch.
func (self *Server) Enqueue(user string, commandText string) error {
	err := self.queue.Enqueue(user, commandText)
	if err != nil {
		glog.Infof("[s]queue full, dropped command from %s\n", user)
	}
	return err
}

// processBatch is one tick of the batch worker: drain the queue, apply
// each record in arrival order against the current version, commit once,
// then append the delta to the audit log and broadcast it.
func (self *Server) processBatch() {
	records := self.queue.Drain()
	if len(records) == 0 {
		return
	}

	self.docLock.Lock()
	defer self.docLock.Unlock()

	oldVersion := self.doc.Version()

	var delta strings.Builder
	fmt.Fprintf(&delta, "VERSION %d\n", oldVersion+1)
	for _, record := range records {
		result := self.applyRecord(record)
		self.log("%s %s = %s", record.user, record.commandText, result)
		fmt.Fprintf(&delta, "EDIT %s %s %s\n", record.user, record.commandText, result)
	}
	self.doc.Commit()
	delta.WriteString("END\n")
	deltaBytes := []byte(delta.String())

	self.appendAudit(deltaBytes)
	self.broadcast(deltaBytes)

	glog.V(2).Infof("[s]v%d: %d records\n", self.doc.Version(), len(records))
}

// applyRecord dispatches one queued command. Rejected commands do not
// touch the document but still produce a delta line.
func (self *Server) applyRecord(record *commandRecord) string {
	// the permission gate goes by the command word, before argument
	// parsing, so a malformed mutator from a read role is still
	// UNAUTHORISED
	word, _, _ := strings.Cut(record.commandText, " ")
	if CommandKind(word).IsMutator() {
		permission, ok := self.registry.Permission(record.user)
		if !ok {
			// not admitted, fall back to the role store for operator
			// and test injected commands
			_, permission, ok = self.registry.roles.Lookup(record.user)
		}
		if !ok || permission != PermissionWrite {
			return ResultUnauthorised
		}
	}

	command, err := ParseCommand(record.commandText)
	if err != nil {
		return resultString(err)
	}
	if !command.Kind.IsMutator() {
		// queries are answered inline by the session, not batched
		return ResultInvalidPosition
	}

	version := self.doc.Version()
	switch command.Kind {
	case CommandInsert:
		err = self.doc.Insert(version, command.Pos, command.Text)
	case CommandDelete:
		err = self.doc.Delete(version, command.Pos, command.Len)
	case CommandNewline:
		err = self.doc.Newline(version, command.Pos)
	case CommandHeading:
		err = self.doc.Heading(version, command.Level, command.Pos)
	case CommandBold:
		err = self.doc.Bold(version, command.Start, command.End)
	case CommandItalic:
		err = self.doc.Italic(version, command.Start, command.End)
	case CommandBlockquote:
		err = self.doc.Blockquote(version, command.Pos)
	case CommandOrderedList:
		err = self.doc.OrderedList(version, command.Pos)
	case CommandUnorderedList:
		err = self.doc.UnorderedList(version, command.Pos)
	case CommandCode:
		err = self.doc.Code(version, command.Start, command.End)
	case CommandHorizontalRule:
		err = self.doc.HorizontalRule(version, command.Pos)
	case CommandLink:
		err = self.doc.Link(version, command.Start, command.End, command.Url)
	}
	return resultString(err)
}

func (self *Server) broadcast(delta []byte) {
	for _, session := range self.registry.ActiveSessions() {
		select {
		case session.send <- delta:
		default:
			glog.Infof("[s]send buffer full, dropped delta for %s (%s)\n", session.user, session.sessionId)
		}
	}
}

func (self *Server) appendAudit(delta []byte) {
	self.auditLock.Lock()
	defer self.auditLock.Unlock()

	self.auditLog = append(self.auditLog, delta...)
}

// QueryDoc returns a self-consistent flatten of the committed document.
func (self *Server) QueryDoc() string {
	self.docLock.RLock()
	defer self.docLock.RUnlock()

	return self.doc.Flatten()
}

// QueryLog returns the concatenation of every delta produced so far.
func (self *Server) QueryLog() string {
	self.auditLock.Lock()
	defer self.auditLock.Unlock()

	return string(self.auditLog)
}

func (self *Server) Version() uint64 {
	self.docLock.RLock()
	defer self.docLock.RUnlock()

	return self.doc.Version()
}

// bootstrapState reads the (version, document) pair sent to a newly
// admitted session, under one hold of the read lock.
func (self *Server) bootstrapState() (uint64, string) {
	self.docLock.RLock()
	defer self.docLock.RUnlock()

	return self.doc.Version(), self.doc.Flatten()
}

// WriteSnapshot writes the flattened committed document to the snapshot
// path. Concurrent disconnects serialize on the snapshot lock.
func (self *Server) WriteSnapshot() error {
	self.snapshotLock.Lock()
	defer self.snapshotLock.Unlock()

	self.docLock.RLock()
	content := self.doc.Flatten()
	self.docLock.RUnlock()

	return os.WriteFile(self.settings.SnapshotPath, []byte(content), 0644)
}

func (self *Server) ActiveSessionCount() int {
	return self.registry.ActiveCount()
}

// Shutdown refuses while any session is active. With none, it stops the
// batch worker and writes the final snapshot.
func (self *Server) Shutdown() error {
	if count := self.registry.ActiveCount(); 0 < count {
		return fmt.Errorf("%d sessions still active", count)
	}
	self.cancel()
	return self.WriteSnapshot()
}

func (self *Server) Done() <-chan struct{} {
	return self.ctx.Done()
}

func (self *Server) Close() {
	self.cancel()
}
