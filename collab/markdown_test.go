package collab

import (
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
)

func newTestDocument(t *testing.T, content string) *Document {
	doc := NewDocument()
	if content != "" {
		assert.Equal(t, nil, doc.PutText(0, content))
	}
	doc.Commit()
	return doc
}

func TestInsertAndDelete(t *testing.T) {
	doc := NewDocument()

	assert.Equal(t, nil, doc.Insert(0, 0, "World"))
	assert.Equal(t, nil, doc.Insert(0, 0, "Hello "))
	doc.Commit()
	assert.Equal(t, "Hello World", doc.Flatten())
	assert.Equal(t, uint64(1), doc.Version())

	assert.Equal(t, nil, doc.Delete(1, 5, 6))
	doc.Commit()
	assert.Equal(t, "Hello", doc.Flatten())
	assert.Equal(t, uint64(2), doc.Version())
}

func TestOutdatedVersion(t *testing.T) {
	doc := newTestDocument(t, "Hello")
	assert.Equal(t, uint64(1), doc.Version())

	assert.Equal(t, ErrOutdatedVersion, doc.Insert(0, 0, "x"))
	assert.Equal(t, ErrOutdatedVersion, doc.Delete(2, 0, 1))
	assert.Equal(t, ErrOutdatedVersion, doc.Bold(0, 0, 5))

	doc.Commit()
	assert.Equal(t, "Hello", doc.Flatten())
}

func TestNewline(t *testing.T) {
	doc := newTestDocument(t, "ab")

	assert.Equal(t, nil, doc.Newline(1, 1))
	doc.Commit()
	assert.Equal(t, "a\nb", doc.Flatten())
}

func TestHeading(t *testing.T) {
	doc := NewDocument()

	assert.Equal(t, nil, doc.Heading(0, 2, 0))
	doc.Commit()
	assert.Equal(t, "## ", doc.Flatten())
	assert.Equal(t, uint64(1), doc.Version())

	// mid text, the marker moves to a fresh line
	assert.Equal(t, nil, doc.Heading(1, 1, 3))
	doc.Commit()
	assert.Equal(t, "## \n# ", doc.Flatten())
	assert.Equal(t, uint64(2), doc.Version())
}

func TestHeadingLevel(t *testing.T) {
	doc := NewDocument()

	assert.Equal(t, ErrInvalidPosition, doc.Heading(0, 0, 0))
	assert.Equal(t, ErrInvalidPosition, doc.Heading(0, 4, 0))
}

func TestRangeFormats(t *testing.T) {
	doc := newTestDocument(t, "Hello")

	assert.Equal(t, nil, doc.Bold(1, 0, 5))
	doc.Commit()
	assert.Equal(t, "**Hello**", doc.Flatten())

	assert.Equal(t, nil, doc.Italic(2, 2, 7))
	doc.Commit()
	assert.Equal(t, "***Hello***", doc.Flatten())

	doc = newTestDocument(t, "code")
	assert.Equal(t, nil, doc.Code(1, 0, 4))
	doc.Commit()
	assert.Equal(t, "`code`", doc.Flatten())
}

func TestRangeValidation(t *testing.T) {
	doc := newTestDocument(t, "Hello")

	assert.Equal(t, ErrInvalidPosition, doc.Bold(1, 3, 3))
	assert.Equal(t, ErrInvalidPosition, doc.Bold(1, 3, 2))
	assert.Equal(t, ErrInvalidPosition, doc.Bold(1, 0, 6))
}

func TestLink(t *testing.T) {
	doc := newTestDocument(t, "see docs here")

	assert.Equal(t, nil, doc.Link(1, 4, 8, "https://example.com"))
	doc.Commit()
	assert.Equal(t, "see [docs](https://example.com) here", doc.Flatten())
}

func TestBlockquote(t *testing.T) {
	doc := newTestDocument(t, "quote")

	assert.Equal(t, nil, doc.Blockquote(1, 0))
	doc.Commit()
	assert.Equal(t, "> quote", doc.Flatten())

	assert.Equal(t, nil, doc.Blockquote(2, 7))
	doc.Commit()
	assert.Equal(t, "> quote\n> ", doc.Flatten())
}

func TestUnorderedList(t *testing.T) {
	doc := newTestDocument(t, "a\nb")

	assert.Equal(t, nil, doc.UnorderedList(1, 2))
	doc.Commit()
	assert.Equal(t, "a\n- b", doc.Flatten())
}

func TestHorizontalRule(t *testing.T) {
	doc := newTestDocument(t, "ab")

	assert.Equal(t, nil, doc.HorizontalRule(1, 2))
	doc.Commit()
	assert.Equal(t, "ab\n---\n", doc.Flatten())
}

func TestBlockElementLineStart(t *testing.T) {
	// after any block element the marker begins the document or follows
	// a newline
	for _, markerAt := range []func(doc *Document, pos int) error{
		func(doc *Document, pos int) error {
			return doc.Heading(doc.Version(), 1, pos)
		},
		func(doc *Document, pos int) error {
			return doc.Blockquote(doc.Version(), pos)
		},
		func(doc *Document, pos int) error {
			return doc.UnorderedList(doc.Version(), pos)
		},
		func(doc *Document, pos int) error {
			return doc.HorizontalRule(doc.Version(), pos)
		},
	} {
		for pos := 0; pos <= 7; pos += 1 {
			doc := newTestDocument(t, "ab\ncd\ne")
			assert.Equal(t, nil, markerAt(doc, pos))
			doc.Commit()
			flat := doc.Flatten()
			markerStart := strings.IndexAny(flat, "#>-")
			assert.NotEqual(t, -1, markerStart)
			if 0 < markerStart {
				assert.Equal(t, byte('\n'), flat[markerStart-1])
			}
		}
	}
}

func TestOrderedListAtLineStart(t *testing.T) {
	doc := newTestDocument(t, "1. a\n2. b\n")

	assert.Equal(t, nil, doc.OrderedList(1, 0))
	doc.Commit()
	assert.Equal(t, "1. \n2. a\n3. b\n", doc.Flatten())
}

func TestOrderedListAppend(t *testing.T) {
	doc := newTestDocument(t, "1. a\n")

	assert.Equal(t, nil, doc.OrderedList(1, 5))
	doc.Commit()
	assert.Equal(t, "1. a\n2. ", doc.Flatten())
}

func TestOrderedListMidList(t *testing.T) {
	doc := newTestDocument(t, "1. a\n2. b\n3. c\n")

	assert.Equal(t, nil, doc.OrderedList(1, 5))
	doc.Commit()
	assert.Equal(t, "1. a\n2. \n3. b\n4. c\n", doc.Flatten())
}

func TestOrderedListMidText(t *testing.T) {
	doc := newTestDocument(t, "intro")

	assert.Equal(t, nil, doc.OrderedList(1, 5))
	doc.Commit()
	assert.Equal(t, "intro\n1. ", doc.Flatten())
}

func TestOrderedListRenumberStops(t *testing.T) {
	doc := newTestDocument(t, "1. a\nplain\n2. b\n")

	assert.Equal(t, nil, doc.OrderedList(1, 0))
	doc.Commit()
	// renumbering stops at the first non-list line
	assert.Equal(t, "1. \n2. a\nplain\n2. b\n", doc.Flatten())
}

func TestOrderedListContinuesNumbering(t *testing.T) {
	doc := newTestDocument(t, "12. a\n")

	assert.Equal(t, nil, doc.OrderedList(1, 6))
	doc.Commit()
	assert.Equal(t, "12. a\n13. ", doc.Flatten())
}

func TestEditSequenceMatchesByteApplication(t *testing.T) {
	// a batch of accepted edits committed once equals applying them
	// sequentially by byte against the baseline
	doc := newTestDocument(t, "Hello World")

	assert.Equal(t, nil, doc.Delete(1, 5, 6))
	assert.Equal(t, nil, doc.Insert(1, 5, "!"))
	doc.Commit()
	assert.Equal(t, "Hello!", doc.Flatten())
}
