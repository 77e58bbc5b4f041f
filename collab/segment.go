package collab

import (
	"strings"

	"golang.org/x/exp/slices"
)

type segmentState int

const (
	segmentCommitted segmentState = iota
	segmentPendingInsert
	segmentPendingDelete
)

// a run of document bytes. Content is immutable once the segment exists;
// edits split segments and change states, never bytes.
type segment struct {
	content []byte
	state   segmentState
}

func (self *segment) split(offset int) (*segment, *segment) {
	left := &segment{content: self.content[:offset], state: self.state}
	right := &segment{content: self.content[offset:], state: self.state}
	return left, right
}

// Document is a two-layer versioned segment store.
// The committed layer is the canonical text of the current version.
// The working layer accumulates pending inserts and deletion markers for
// the in-flight version and is promoted wholesale by `Commit`.
//
// Positions are byte offsets into the visible text: pending inserts are
// invisible to position arithmetic until commit, pending deletes still
// count. This keeps every command in a batch addressing the committed
// baseline of the version the batch started from.
//
// The document does no locking. The owner serializes access.
type Document struct {
	committed []*segment
	working   []*segment
	version   uint64
}

func NewDocument() *Document {
	return &Document{}
}

func (self *Document) Version() uint64 {
	return self.version
}

// Flatten returns the committed text of the current version.
func (self *Document) Flatten() string {
	var out strings.Builder
	for _, seg := range self.committed {
		out.Write(seg.content)
	}
	return out.String()
}

// visibleFlatten returns the text the position space addresses.
// By the layer invariant this equals the committed text.
func (self *Document) visibleFlatten() string {
	if self.working == nil {
		return self.Flatten()
	}
	var out strings.Builder
	for _, seg := range self.working {
		if seg.state != segmentPendingInsert {
			out.Write(seg.content)
		}
	}
	return out.String()
}

func (self *Document) VisibleLength() int {
	if self.working == nil {
		length := 0
		for _, seg := range self.committed {
			length += len(seg.content)
		}
		return length
	}
	length := 0
	for _, seg := range self.working {
		if seg.state != segmentPendingInsert {
			length += len(seg.content)
		}
	}
	return length
}

// syncWorking lazily seeds the working layer from the committed layer
// before the first mutation of a version.
func (self *Document) syncWorking() {
	if self.working == nil {
		working := make([]*segment, 0, len(self.committed))
		for _, seg := range self.committed {
			working = append(working, &segment{content: seg.content, state: segmentCommitted})
		}
		self.working = working
	}
}

// PutText inserts `content` as a pending insert at visible position `pos`.
// At a boundary already holding pending inserts the new text lands first,
// so repeated inserts at one position read latest-first after commit.
func (self *Document) PutText(pos int, content string) error {
	return self.insertText(pos, content, false)
}

// AddText is the composing variant used by the formatting commands:
// at a boundary already holding pending inserts the new text lands after
// them, so a multi-step rewrite builds up left to right.
func (self *Document) AddText(pos int, content string) error {
	return self.insertText(pos, content, true)
}

func (self *Document) insertText(pos int, content string, skipPending bool) error {
	if pos < 0 {
		return ErrInvalidPosition
	}
	self.syncWorking()

	count := 0
	i := 0
	for i < len(self.working) {
		seg := self.working[i]
		if seg.state == segmentPendingInsert {
			if count == pos && !skipPending {
				break
			}
			i += 1
			continue
		}
		if count == pos {
			break
		}
		if pos < count+len(seg.content) {
			// strictly inside a visible segment
			if seg.state == segmentPendingDelete {
				return ErrDeletedPosition
			}
			left, right := seg.split(pos - count)
			self.working = slices.Replace(self.working, i, i+1, left, right)
			i += 1
			break
		}
		count += len(seg.content)
		i += 1
	}
	if i == len(self.working) && count != pos {
		return ErrInvalidPosition
	}

	insert := &segment{content: []byte(content), state: segmentPendingInsert}
	self.working = slices.Insert(self.working, i, insert)
	return nil
}

// RemoveText marks `length` visible bytes starting at `pos` as pending
// deletes. A length that overruns the end deletes to the end. A delete whose
// first byte is already pending delete in this version fails
// `ErrDeletedPosition`; pending deletes further into the range are passed over.
func (self *Document) RemoveText(pos int, length int) error {
	if pos < 0 || length < 0 {
		return ErrInvalidPosition
	}
	self.syncWorking()

	count := 0
	i := 0
	offset := -1
	for i < len(self.working) {
		seg := self.working[i]
		if seg.state == segmentPendingInsert {
			i += 1
			continue
		}
		if pos < count+len(seg.content) {
			offset = pos - count
			break
		}
		count += len(seg.content)
		i += 1
	}
	if offset < 0 {
		// pos is at or past the last visible byte
		if pos != count {
			return ErrInvalidPosition
		}
		return nil
	}

	remaining := length
	if remaining == 0 {
		return nil
	}
	if self.working[i].state == segmentPendingDelete {
		return ErrDeletedPosition
	}

	for 0 < remaining && i < len(self.working) {
		seg := self.working[i]
		if seg.state == segmentPendingInsert {
			i += 1
			continue
		}
		segLength := len(seg.content)
		if offset == 0 && segLength <= remaining {
			// entirely covered
			seg.state = segmentPendingDelete
			remaining -= segLength
			i += 1
			continue
		}
		take := segLength - offset
		if remaining < take {
			take = remaining
		}
		if seg.state == segmentPendingDelete {
			// already scheduled for deletion, pass over
			remaining -= take
			offset = 0
			i += 1
			continue
		}
		// partially covered: carve the middle out
		pieces := []*segment{}
		if 0 < offset {
			pieces = append(pieces, &segment{content: seg.content[:offset], state: seg.state})
		}
		pieces = append(pieces, &segment{content: seg.content[offset : offset+take], state: segmentPendingDelete})
		if offset+take < segLength {
			pieces = append(pieces, &segment{content: seg.content[offset+take:], state: seg.state})
		}
		self.working = slices.Replace(self.working, i, i+1, pieces...)
		remaining -= take
		offset = 0
		i += len(pieces)
	}
	return nil
}

// Commit promotes the working layer: pending deletes are dropped, pending
// inserts become committed, and the result replaces the committed layer.
// The version advances whether or not the working layer was touched, so a
// batch of rejected commands still produces a new version.
func (self *Document) Commit() {
	if self.working != nil {
		committed := make([]*segment, 0, len(self.working))
		for _, seg := range self.working {
			if len(seg.content) == 0 {
				continue
			}
			switch seg.state {
			case segmentPendingDelete:
				// freed
			case segmentPendingInsert:
				seg.state = segmentCommitted
				committed = append(committed, seg)
			default:
				committed = append(committed, seg)
			}
		}
		self.committed = committed
		self.working = nil
	}
	self.version += 1
}
