package collab

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
)

// id for a session, used in logs and trace tags
type Id [16]byte

func NewId() Id {
	return Id(ulid.Make())
}

func (self Id) String() string {
	return ulid.ULID(self).String()
}

// engine result codes. The textual forms below are the only place
// the distinction escapes to the wire.
var ErrInvalidPosition = errors.New("invalid position")
var ErrDeletedPosition = errors.New("deleted position")
var ErrOutdatedVersion = errors.New("outdated version")

const ResultSuccess = "SUCCESS"
const ResultUnauthorised = "Reject UNAUTHORISED"
const ResultInvalidPosition = "Reject INVALID_POSITION"
const ResultDeletedPosition = "Reject DELETED_POSITION"
const ResultOutdatedVersion = "Reject OUTDATED_VERSION"

func resultString(err error) string {
	switch err {
	case nil:
		return ResultSuccess
	case ErrDeletedPosition:
		return ResultDeletedPosition
	case ErrOutdatedVersion:
		return ResultOutdatedVersion
	default:
		return ResultInvalidPosition
	}
}

type CommandKind string

const (
	CommandInsert         CommandKind = "INSERT"
	CommandDelete         CommandKind = "DEL"
	CommandNewline        CommandKind = "NEWLINE"
	CommandHeading        CommandKind = "HEADING"
	CommandBold           CommandKind = "BOLD"
	CommandItalic         CommandKind = "ITALIC"
	CommandBlockquote     CommandKind = "BLOCKQUOTE"
	CommandOrderedList    CommandKind = "ORDERED_LIST"
	CommandUnorderedList  CommandKind = "UNORDERED_LIST"
	CommandCode           CommandKind = "CODE"
	CommandHorizontalRule CommandKind = "HORIZONTAL_RULE"
	CommandLink           CommandKind = "LINK"

	CommandQueryDoc   CommandKind = "DOC?"
	CommandQueryPerm  CommandKind = "PERM?"
	CommandQueryLog   CommandKind = "LOG?"
	CommandDisconnect CommandKind = "DISCONNECT"
)

var mutatorKinds = map[CommandKind]bool{
	CommandInsert:         true,
	CommandDelete:         true,
	CommandNewline:        true,
	CommandHeading:        true,
	CommandBold:           true,
	CommandItalic:         true,
	CommandBlockquote:     true,
	CommandOrderedList:    true,
	CommandUnorderedList:  true,
	CommandCode:           true,
	CommandHorizontalRule: true,
	CommandLink:           true,
}

func (self CommandKind) IsMutator() bool {
	return mutatorKinds[self]
}

// one parsed command line. Fields are populated per kind:
// positions for point commands, start/end for range commands,
// text for INSERT, url for LINK, level for HEADING.
type Command struct {
	Kind  CommandKind
	Pos   int
	Len   int
	Level int
	Start int
	End   int
	Text  string
	Url   string
}

func parseNonNegative(field string) (int, error) {
	value, err := strconv.Atoi(field)
	if err != nil {
		return 0, ErrInvalidPosition
	}
	if value < 0 {
		return 0, ErrInvalidPosition
	}
	return value, nil
}

// ParseCommand parses one line of the ascii command grammar.
// Malformed lines and unknown command words fail with `ErrInvalidPosition`,
// which the batch worker stringifies the same way the engine does.
func ParseCommand(line string) (*Command, error) {
	line = strings.TrimRight(line, "\r\n")
	word, rest, _ := strings.Cut(line, " ")
	kind := CommandKind(word)

	switch kind {
	case CommandQueryDoc, CommandQueryPerm, CommandQueryLog, CommandDisconnect:
		if rest != "" {
			return nil, ErrInvalidPosition
		}
		return &Command{Kind: kind}, nil
	case CommandInsert:
		posField, text, ok := strings.Cut(rest, " ")
		if !ok || text == "" {
			return nil, ErrInvalidPosition
		}
		pos, err := parseNonNegative(posField)
		if err != nil {
			return nil, err
		}
		return &Command{Kind: kind, Pos: pos, Text: text}, nil
	case CommandDelete:
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return nil, ErrInvalidPosition
		}
		pos, err := parseNonNegative(fields[0])
		if err != nil {
			return nil, err
		}
		length, err := parseNonNegative(fields[1])
		if err != nil {
			return nil, err
		}
		return &Command{Kind: kind, Pos: pos, Len: length}, nil
	case CommandNewline, CommandBlockquote, CommandOrderedList, CommandUnorderedList, CommandHorizontalRule:
		fields := strings.Fields(rest)
		if len(fields) != 1 {
			return nil, ErrInvalidPosition
		}
		pos, err := parseNonNegative(fields[0])
		if err != nil {
			return nil, err
		}
		return &Command{Kind: kind, Pos: pos}, nil
	case CommandHeading:
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return nil, ErrInvalidPosition
		}
		level, err := parseNonNegative(fields[0])
		if err != nil {
			return nil, err
		}
		pos, err := parseNonNegative(fields[1])
		if err != nil {
			return nil, err
		}
		return &Command{Kind: kind, Level: level, Pos: pos}, nil
	case CommandBold, CommandItalic, CommandCode:
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return nil, ErrInvalidPosition
		}
		start, err := parseNonNegative(fields[0])
		if err != nil {
			return nil, err
		}
		end, err := parseNonNegative(fields[1])
		if err != nil {
			return nil, err
		}
		return &Command{Kind: kind, Start: start, End: end}, nil
	case CommandLink:
		fields := strings.Fields(rest)
		if len(fields) != 3 {
			return nil, ErrInvalidPosition
		}
		start, err := parseNonNegative(fields[0])
		if err != nil {
			return nil, err
		}
		end, err := parseNonNegative(fields[1])
		if err != nil {
			return nil, err
		}
		return &Command{Kind: kind, Start: start, End: end, Url: fields[2]}, nil
	default:
		return nil, ErrInvalidPosition
	}
}

func (self *Command) String() string {
	switch self.Kind {
	case CommandInsert:
		return fmt.Sprintf("%s %d %s", self.Kind, self.Pos, self.Text)
	case CommandDelete:
		return fmt.Sprintf("%s %d %d", self.Kind, self.Pos, self.Len)
	case CommandHeading:
		return fmt.Sprintf("%s %d %d", self.Kind, self.Level, self.Pos)
	case CommandBold, CommandItalic, CommandCode:
		return fmt.Sprintf("%s %d %d", self.Kind, self.Start, self.End)
	case CommandLink:
		return fmt.Sprintf("%s %d %d %s", self.Kind, self.Start, self.End, self.Url)
	case CommandNewline, CommandBlockquote, CommandOrderedList, CommandUnorderedList, CommandHorizontalRule:
		return fmt.Sprintf("%s %d", self.Kind, self.Pos)
	default:
		return string(self.Kind)
	}
}
