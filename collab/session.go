package collab

import (
	"bufio"
	"errors"
	"os"
	"strings"
	"sync"
)

var ErrUnauthorised = errors.New("unauthorised")
var ErrRegistryFull = errors.New("session registry full")

type Permission int

const (
	PermissionRead Permission = iota
	PermissionWrite
)

const RoleRead = "read"
const RoleWrite = "write"

// roleStore reads the line-oriented `name SP role` file.
// The file is re-read on every lookup so an edit takes effect on the
// next authentication attempt.
type roleStore struct {
	path string
}

func newRoleStore(path string) *roleStore {
	return &roleStore{
		path: path,
	}
}

func (self *roleStore) Lookup(user string) (string, Permission, bool) {
	file, err := os.Open(self.path)
	if err != nil {
		return "", PermissionRead, false
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		name, role, ok := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		if !ok {
			continue
		}
		if name != user {
			continue
		}
		switch role {
		case RoleWrite:
			return role, PermissionWrite, true
		case RoleRead:
			return role, PermissionRead, true
		default:
			return "", PermissionRead, false
		}
	}
	return "", PermissionRead, false
}

// one admitted client
type session struct {
	sessionId  Id
	user       string
	role       string
	permission Permission

	// outbound channel drained by the session's transport write loop
	send chan []byte
}

// sessionRegistry is the fixed-capacity slot table of admitted clients.
type sessionRegistry struct {
	roles *roleStore

	stateLock sync.Mutex
	slots     []*session
}

func newSessionRegistry(roles *roleStore, maxSessions int) *sessionRegistry {
	return &sessionRegistry{
		roles: roles,
		slots: make([]*session, maxSessions),
	}
}

// Admit authenticates `user` against the role store and allocates a slot.
// `sendBufferSize` sizes the outbound channel so one slow session does
// not stall the broadcast of others.
func (self *sessionRegistry) Admit(user string, sendBufferSize int) (*session, error) {
	role, permission, ok := self.roles.Lookup(user)
	if !ok {
		return nil, ErrUnauthorised
	}

	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	for i := 0; i < len(self.slots); i += 1 {
		if self.slots[i] == nil {
			session := &session{
				sessionId:  NewId(),
				user:       user,
				role:       role,
				permission: permission,
				send:       make(chan []byte, sendBufferSize),
			}
			self.slots[i] = session
			return session, nil
		}
	}
	return nil, ErrRegistryFull
}

func (self *sessionRegistry) Release(session *session) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	for i := 0; i < len(self.slots); i += 1 {
		if self.slots[i] == session {
			// note `send` is not closed. The write loop exits on its
			// context, and a late broadcast to a released session just
			// lands in the buffer and is dropped with it.
			self.slots[i] = nil
			return
		}
	}
}

// Permission returns the write capability of an admitted user.
// A user with multiple sessions has one role, the first slot wins.
func (self *sessionRegistry) Permission(user string) (Permission, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	for _, session := range self.slots {
		if session != nil && session.user == user {
			return session.permission, true
		}
	}
	return PermissionRead, false
}

// ActiveSessions snapshots the active slots in slot order.
func (self *sessionRegistry) ActiveSessions() []*session {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	sessions := []*session{}
	for _, session := range self.slots {
		if session != nil {
			sessions = append(sessions, session)
		}
	}
	return sessions
}

func (self *sessionRegistry) ActiveCount() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	count := 0
	for _, session := range self.slots {
		if session != nil {
			count += 1
		}
	}
	return count
}
