// Package events defines the commands and events of the library channel.
//
// Commands go to the external parsing worker; outcome events come back from
// it carrying the same requestId. Every type here is registered by Register
// so listeners can decode it.
package events

import (
	"github.com/google/uuid"

	eventbus "github.com/ghuser/bookreader/pkg/events"
)

// Channel is the routing namespace of everything in this package.
const Channel = "library.book"

var (
	KindRequestSourceParsing   = eventbus.Kind{Channel: Channel, TypeName: "RequestSourceParsingCommand"}
	KindRequestSourceReparsing = eventbus.Kind{Channel: Channel, TypeName: "RequestSourceReparsingCommand"}
	KindSourceParsed           = eventbus.Kind{Channel: Channel, TypeName: "SourceParsedEvent"}
	KindSourceReparsed         = eventbus.Kind{Channel: Channel, TypeName: "SourceReparsedEvent"}
	KindSourceAlreadyParsed    = eventbus.Kind{Channel: Channel, TypeName: "SourceAlreadyParsedEvent"}
	KindSourceParsingFailed    = eventbus.Kind{Channel: Channel, TypeName: "SourceParsingFailedEvent"}
	KindSourceReparsingFailed  = eventbus.Kind{Channel: Channel, TypeName: "SourceReparsingFailedEvent"}
	KindBookCreated            = eventbus.Kind{Channel: Channel, TypeName: "BookCreatedEvent"}
)

// RequestSourceParsingCommand asks the worker to download and parse a file.
type RequestSourceParsingCommand struct {
	RequestID string `json:"requestId"`
	FileURL   string `json:"fileUrl"`
	FileName  string `json:"fileName"`
}

func (RequestSourceParsingCommand) Kind() eventbus.Kind { return KindRequestSourceParsing }

func (c RequestSourceParsingCommand) CorrelationID() string { return c.RequestID }

// RequestSourceReparsingCommand asks the worker to parse a source it has
// already registered but whose book was never materialized.
type RequestSourceReparsingCommand struct {
	RequestID string `json:"requestId"`
	SourceID  string `json:"sourceId"`
	FileURL   string `json:"fileUrl"`
	FileName  string `json:"fileName"`
}

func (RequestSourceReparsingCommand) Kind() eventbus.Kind { return KindRequestSourceReparsing }

func (c RequestSourceReparsingCommand) CorrelationID() string { return c.RequestID }

// SourceMeta is the bibliographic data the worker extracted.
type SourceMeta struct {
	Title       string `json:"title,omitempty"`
	CoverPath   string `json:"coverPath,omitempty"`
	Annotation  string `json:"annotation,omitempty"`
	Description string `json:"description,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
	Date        string `json:"date,omitempty"`
	Creator     string `json:"creator,omitempty"`
	Language    string `json:"language,omitempty"`
	DOI         string `json:"doi,omitempty"`
	ISBN        string `json:"isbn,omitempty"`
	UUID        string `json:"uuid,omitempty"`
	JDCN        string `json:"jdcn,omitempty"`
}

// SourcePage is one parsed page in reading order.
type SourcePage struct {
	Titles    []string `json:"titles,omitempty"`
	Content   string   `json:"content"`
	FilePaths []string `json:"filePaths"`
}

// SourceParsedEvent reports a successful first parse.
type SourceParsedEvent struct {
	RequestID string       `json:"requestId"`
	SourceID  string       `json:"sourceId"`
	Meta      SourceMeta   `json:"meta"`
	Pages     []SourcePage `json:"pages"`
}

func (SourceParsedEvent) Kind() eventbus.Kind { return KindSourceParsed }

func (e SourceParsedEvent) CorrelationID() string { return e.RequestID }

// SourceReparsedEvent reports a successful re-parse. It carries the same
// fields as SourceParsedEvent.
type SourceReparsedEvent struct {
	RequestID string       `json:"requestId"`
	SourceID  string       `json:"sourceId"`
	Meta      SourceMeta   `json:"meta"`
	Pages     []SourcePage `json:"pages"`
}

func (SourceReparsedEvent) Kind() eventbus.Kind { return KindSourceReparsed }

func (e SourceReparsedEvent) CorrelationID() string { return e.RequestID }

// Parsed returns the event as a SourceParsedEvent so both outcomes share one
// materialization path.
func (e SourceReparsedEvent) Parsed() SourceParsedEvent {
	return SourceParsedEvent(e)
}

// SourceAlreadyParsedEvent reports that the file's source is already known.
type SourceAlreadyParsedEvent struct {
	RequestID string `json:"requestId"`
	SourceID  string `json:"sourceId"`
}

func (SourceAlreadyParsedEvent) Kind() eventbus.Kind { return KindSourceAlreadyParsed }

func (e SourceAlreadyParsedEvent) CorrelationID() string { return e.RequestID }

// SourceParsingFailedEvent reports that a first parse failed.
type SourceParsingFailedEvent struct {
	RequestID string `json:"requestId"`
	Reason    string `json:"reason,omitempty"`
}

func (SourceParsingFailedEvent) Kind() eventbus.Kind { return KindSourceParsingFailed }

func (e SourceParsingFailedEvent) CorrelationID() string { return e.RequestID }

// SourceReparsingFailedEvent reports that a re-parse failed.
type SourceReparsingFailedEvent struct {
	RequestID string `json:"requestId"`
	SourceID  string `json:"sourceId"`
	Reason    string `json:"reason,omitempty"`
}

func (SourceReparsingFailedEvent) Kind() eventbus.Kind { return KindSourceReparsingFailed }

func (e SourceReparsingFailedEvent) CorrelationID() string { return e.RequestID }

// PageRef points at a page of a book, in reading order.
type PageRef struct {
	PageID uuid.UUID `json:"pageId"`
}

// BookCreatedEvent is recorded when a book is materialized from a source.
type BookCreatedEvent struct {
	BookID   uuid.UUID `json:"bookId"`
	SourceID string    `json:"sourceId"`
	Pages    []PageRef `json:"pages"`
}

func (BookCreatedEvent) Kind() eventbus.Kind { return KindBookCreated }

// Register adds every library kind to reg.
func Register(reg *eventbus.Registry) error {
	factories := map[eventbus.Kind]func() eventbus.Event{
		KindRequestSourceParsing:   func() eventbus.Event { return &RequestSourceParsingCommand{} },
		KindRequestSourceReparsing: func() eventbus.Event { return &RequestSourceReparsingCommand{} },
		KindSourceParsed:           func() eventbus.Event { return &SourceParsedEvent{} },
		KindSourceReparsed:         func() eventbus.Event { return &SourceReparsedEvent{} },
		KindSourceAlreadyParsed:    func() eventbus.Event { return &SourceAlreadyParsedEvent{} },
		KindSourceParsingFailed:    func() eventbus.Event { return &SourceParsingFailedEvent{} },
		KindSourceReparsingFailed:  func() eventbus.Event { return &SourceReparsingFailedEvent{} },
		KindBookCreated:            func() eventbus.Event { return &BookCreatedEvent{} },
	}
	for kind, factory := range factories {
		if err := reg.Register(kind, factory); err != nil {
			return err
		}
	}
	return nil
}
