package collab

import (
	"fmt"
	"strconv"
	"strings"
)

// The markdown edit commands. Each validates (version, position or range)
// and rewrites the document through the segment store. Commands address
// visible positions: byte offsets into the committed baseline of `version`.

func (self *Document) validateVersion(version uint64) error {
	if version != self.version {
		return ErrOutdatedVersion
	}
	return nil
}

func (self *Document) validateRange(version uint64, start int, end int) error {
	if err := self.validateVersion(version); err != nil {
		return err
	}
	if end <= start {
		return ErrInvalidPosition
	}
	return nil
}

func (self *Document) Insert(version uint64, pos int, content string) error {
	if err := self.validateVersion(version); err != nil {
		return err
	}
	return self.PutText(pos, content)
}

func (self *Document) Delete(version uint64, pos int, length int) error {
	if err := self.validateVersion(version); err != nil {
		return err
	}
	return self.RemoveText(pos, length)
}

func (self *Document) Newline(version uint64, pos int) error {
	if err := self.validateVersion(version); err != nil {
		return err
	}
	return self.AddText(pos, "\n")
}

func (self *Document) Heading(version uint64, level int, pos int) error {
	if err := self.validateVersion(version); err != nil {
		return err
	}
	if level < 1 || 3 < level {
		return ErrInvalidPosition
	}
	return self.insertBlockElement(pos, strings.Repeat("#", level)+" ")
}

func (self *Document) Bold(version uint64, start int, end int) error {
	if err := self.validateRange(version, start, end); err != nil {
		return err
	}
	return self.rangeFormat(start, end, "**")
}

func (self *Document) Italic(version uint64, start int, end int) error {
	if err := self.validateRange(version, start, end); err != nil {
		return err
	}
	return self.rangeFormat(start, end, "*")
}

func (self *Document) Code(version uint64, start int, end int) error {
	if err := self.validateRange(version, start, end); err != nil {
		return err
	}
	return self.rangeFormat(start, end, "`")
}

func (self *Document) Blockquote(version uint64, pos int) error {
	if err := self.validateVersion(version); err != nil {
		return err
	}
	return self.insertBlockElement(pos, "> ")
}

func (self *Document) UnorderedList(version uint64, pos int) error {
	if err := self.validateVersion(version); err != nil {
		return err
	}
	return self.insertBlockElement(pos, "- ")
}

func (self *Document) HorizontalRule(version uint64, pos int) error {
	if err := self.validateVersion(version); err != nil {
		return err
	}
	return self.insertBlockElement(pos, "---\n")
}

func (self *Document) Link(version uint64, start int, end int, url string) error {
	if err := self.validateRange(version, start, end); err != nil {
		return err
	}
	// closing first so the end position does not drift
	if err := self.AddText(end, "]("+url+")"); err != nil {
		return err
	}
	return self.AddText(start, "[")
}

// insertBlockElement inserts a block-level marker, prefixing a newline
// unless the position already begins a line.
func (self *Document) insertBlockElement(pos int, marker string) error {
	flat := self.visibleFlatten()
	if len(flat) < pos {
		return ErrInvalidPosition
	}
	if 0 < pos && flat[pos-1] != '\n' {
		marker = "\n" + marker
	}
	return self.AddText(pos, marker)
}

// rangeFormat wraps [start, end) with a symmetric marker,
// closing marker first so the end position does not drift.
func (self *Document) rangeFormat(start int, end int, marker string) error {
	if err := self.AddText(end, marker); err != nil {
		return err
	}
	return self.AddText(start, marker)
}

// parseListNumber matches a `digits ". "` list prefix at the start of
// `line` and returns the number and the prefix width. Width 0 means no
// match.
func parseListNumber(line string) (int, int) {
	i := 0
	for i < len(line) && '0' <= line[i] && line[i] <= '9' {
		i += 1
	}
	if i == 0 || len(line) < i+2 || line[i] != '.' || line[i+1] != ' ' {
		return 0, 0
	}
	number, err := strconv.Atoi(line[:i])
	if err != nil {
		return 0, 0
	}
	return number, i + 2
}

// OrderedList inserts a numbered list item at `pos`, numbered one past the
// previous line's item, and renumbers the run of list items that follows
// to consecutive integers. When the insert lands at a line start the
// displaced remainder of that line is the first renumber candidate and
// moves to its own line.
func (self *Document) OrderedList(version uint64, pos int) error {
	if err := self.validateVersion(version); err != nil {
		return err
	}
	flat := self.visibleFlatten()
	if len(flat) < pos {
		return ErrInvalidPosition
	}
	atLineStart := pos == 0 || flat[pos-1] == '\n'

	prev := 0
	if 0 < pos {
		i := pos - 2
		for 0 <= i && flat[i] != '\n' {
			i -= 1
		}
		if number, width := parseListNumber(flat[i+1:]); 0 < width {
			prev = number
		}
	}

	prefix := fmt.Sprintf("%d. ", prev+1)
	if !atLineStart {
		prefix = "\n" + prefix
	}
	if err := self.AddText(pos, prefix); err != nil {
		return err
	}

	next := prev + 2
	scan := pos
	first := atLineStart
	for {
		var lineStart int
		if first {
			lineStart = pos
			first = false
		} else {
			nl := strings.IndexByte(flat[scan:], '\n')
			if nl < 0 {
				break
			}
			lineStart = scan + nl + 1
			if len(flat) <= lineStart {
				break
			}
		}
		_, width := parseListNumber(flat[lineStart:])
		if width == 0 {
			break
		}
		if err := self.RemoveText(lineStart, width); err != nil {
			return err
		}
		replacement := fmt.Sprintf("%d. ", next)
		if lineStart == pos {
			// same line as the inserted item, split it off
			replacement = "\n" + replacement
		}
		if err := self.AddText(lineStart, replacement); err != nil {
			return err
		}
		next += 1
		scan = lineStart
	}
	return nil
}
