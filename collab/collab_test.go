package collab

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestParseCommand(t *testing.T) {
	command, err := ParseCommand("INSERT 4 hello world\n")
	assert.Equal(t, nil, err)
	assert.Equal(t, CommandInsert, command.Kind)
	assert.Equal(t, 4, command.Pos)
	assert.Equal(t, "hello world", command.Text)
	assert.Equal(t, "INSERT 4 hello world", command.String())

	command, err = ParseCommand("DEL 2 7")
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, command.Pos)
	assert.Equal(t, 7, command.Len)

	command, err = ParseCommand("HEADING 3 10")
	assert.Equal(t, nil, err)
	assert.Equal(t, 3, command.Level)
	assert.Equal(t, 10, command.Pos)

	command, err = ParseCommand("LINK 1 5 https://example.com")
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, command.Start)
	assert.Equal(t, 5, command.End)
	assert.Equal(t, "https://example.com", command.Url)

	command, err = ParseCommand("DOC?")
	assert.Equal(t, nil, err)
	assert.Equal(t, CommandQueryDoc, command.Kind)
	assert.Equal(t, false, command.Kind.IsMutator())
}

func TestParseCommandMalformed(t *testing.T) {
	for _, line := range []string{
		"",
		"NOP 1",
		"INSERT",
		"INSERT 4",
		"INSERT x text",
		"INSERT -1 text",
		"DEL 1",
		"DEL 1 2 3",
		"HEADING 1",
		"BOLD 1",
		"LINK 1 5",
		"DOC? extra",
	} {
		_, err := ParseCommand(line)
		assert.Equal(t, ErrInvalidPosition, err)
	}
}

func TestCommandKindIsMutator(t *testing.T) {
	assert.Equal(t, true, CommandInsert.IsMutator())
	assert.Equal(t, true, CommandOrderedList.IsMutator())
	assert.Equal(t, false, CommandQueryLog.IsMutator())
	assert.Equal(t, false, CommandDisconnect.IsMutator())
}

func TestResultString(t *testing.T) {
	assert.Equal(t, ResultSuccess, resultString(nil))
	assert.Equal(t, ResultInvalidPosition, resultString(ErrInvalidPosition))
	assert.Equal(t, ResultDeletedPosition, resultString(ErrDeletedPosition))
	assert.Equal(t, ResultOutdatedVersion, resultString(ErrOutdatedVersion))
}

func TestNewId(t *testing.T) {
	a := NewId()
	b := NewId()
	assert.NotEqual(t, a, b)
	assert.Equal(t, 26, len(a.String()))
}
