package lang

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"strconv"
	"sync"

	"github.com/klauspost/readahead"
	"github.com/zeebo/xxh3"
)

var (
	// sectionCache stores sections keyed by (source_hash:name), so
	// repeated lookups against the same source never reparse.
	sectionCache sync.Map

	// sourceRegistry tracks per-source parse state by source hash.
	sourceRegistry sync.Map
)

// sourceState tracks parse state and the section name list for one
// source.
type sourceState struct {
	once     sync.Once
	document *Document
	names    []string
	err      error
}

// Stream provides lazy access to the sections of a layout source. The
// source is parsed once on first access, and individual sections are
// cached by name across Stream instances for the same source text.
type Stream struct {
	reader    io.Reader
	source    string
	sourceKey string
	state     *sourceState
}

// NewStream creates a lazy parser from an io.Reader. The reader is not
// consumed until the first access.
func NewStream(r io.Reader) *Stream {
	return &Stream{reader: r, state: new(sourceState)}
}

// NewStreamFromString creates a lazy parser from source text.
func NewStreamFromString(source string) *Stream {
	key := sourceKey([]byte(source))

	entry := new(sourceState)
	value, _ := sourceRegistry.LoadOrStore(key, entry)

	return &Stream{
		source:    source,
		sourceKey: key,
		state:     value.(*sourceState),
	}
}

func sourceKey(data []byte) string {
	return strconv.FormatUint(xxh3.Hash(data), 36)
}

// ensureParsed reads and parses the source on first access, caching
// each section by name.
func (s *Stream) ensureParsed() error {
	s.state.once.Do(func() {
		if s.source == "" && s.reader != nil {
			// Read-ahead lets the source be fetched while earlier
			// chunks are still being copied.
			ra := readahead.NewReader(s.reader)
			defer ra.Close()

			data, err := io.ReadAll(ra)
			if err != nil {
				s.state.err = ErrReadInput.Wrap(err)

				return
			}

			s.source = string(data)
			s.sourceKey = sourceKey(data)
		}

		doc, err := ParseDocument(context.Background(), s.source)
		if err != nil {
			s.state.err = err

			return
		}

		s.state.document = doc

		for section := range doc.Sections() {
			s.state.names = append(s.state.names, section.Name)
			sectionCache.Store(s.sourceKey+":"+section.Name, section)
		}
	})

	return s.state.err
}

// GetSection retrieves a section by name. Returns an error if parsing
// fails or no section has that name.
func (s *Stream) GetSection(name string) (*Section, error) {
	if err := s.ensureParsed(); err != nil {
		return nil, err
	}

	if value, ok := sectionCache.Load(s.sourceKey + ":" + name); ok {
		return value.(*Section), nil
	}

	return nil, ErrItemNotFound.With(slog.String("section", name))
}

// Sections returns an iterator over all sections in the source. If
// parsing fails, the iterator yields no values.
func (s *Stream) Sections() iter.Seq[*Section] {
	return func(yield func(*Section) bool) {
		if err := s.ensureParsed(); err != nil {
			return
		}

		for _, name := range s.state.names {
			if value, ok := sectionCache.Load(s.sourceKey + ":" + name); ok {
				if !yield(value.(*Section)) {
					return
				}
			}
		}
	}
}

// Document returns the complete parsed document.
func (s *Stream) Document() (*Document, error) {
	if err := s.ensureParsed(); err != nil {
		return nil, err
	}

	return s.state.document, nil
}

// GetSectionFrom retrieves a section by name from an io.Reader.
func GetSectionFrom(r io.Reader, name string) (*Section, error) {
	return NewStream(r).GetSection(name)
}

// SectionsFrom returns an iterator over all sections from an io.Reader.
func SectionsFrom(r io.Reader) iter.Seq[*Section] {
	return NewStream(r).Sections()
}

// ClearCache removes all cached sections and source state. Primarily
// useful in tests.
func ClearCache() {
	sectionCache = sync.Map{}
	sourceRegistry = sync.Map{}
}
