package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ghuser/bookreader/pkg/events"
	"github.com/ghuser/bookreader/pkg/logger"
	"github.com/ghuser/bookreader/pkg/uow"
	"github.com/ghuser/bookreader/services/library/domain"
	libevents "github.com/ghuser/bookreader/services/library/domain/events"
	"github.com/ghuser/bookreader/services/library/domain/models"
	"github.com/ghuser/bookreader/services/library/domain/repositories"
	domainsvcs "github.com/ghuser/bookreader/services/library/domain/services"
)

const meterName = "github.com/ghuser/bookreader/services/library"

// DefaultUploadTimeout bounds how long an upload waits for the parser.
const DefaultUploadTimeout = 5 * time.Minute

var errUploadSettled = errors.New("upload already settled")

// Subscriber registers event handlers. *events.Listener implements it.
type Subscriber interface {
	Register(ctx context.Context, kind events.Kind, h *events.Handler, opts events.Options) error
	Unregister(ctx context.Context, kind events.Kind, h *events.Handler) error
}

// Transactor runs a function in a unit of work. *uow.UnitOfWork implements it.
type Transactor interface {
	Do(ctx context.Context, fn func(ctx context.Context, s *uow.Session) error) error
}

// ReparseTracker flags concurrent re-parse requests for one source.
// *cache.ReparseTracker implements it.
type ReparseTracker interface {
	Begin(ctx context.Context, sourceID, requestID string) (string, error)
	Finish(ctx context.Context, sourceID string) error
}

// UploadRequest is a file the reader wants to add to the library.
type UploadRequest struct {
	FileURL    string
	FileName   string
	TelegramID string
}

// UploaderDeps are the collaborators of an Uploader. Tracker may be nil.
type UploaderDeps struct {
	Listener   Subscriber
	Dispatcher uow.Dispatcher
	UnitOfWork Transactor
	Books      repositories.BookRepository
	Pages      repositories.PageRepository
	Sessions   repositories.SessionRepository
	Tracker    ReparseTracker
	Log        logger.Logger
}

// Uploader turns an upload into a reading session by asking the external
// parser for the file's content and waiting for its answer.
//
// Each upload sends a command with a fresh request ID and listens for every
// outcome event on broadcast subscriptions shared with concurrent uploads,
// picking its own answer by request ID. The first matching outcome releases
// all handlers of the upload before acting on it. The upload settles exactly
// once: with a session, with a failure, or with domain.ErrUploadTimedOut.
type Uploader struct {
	listener   Subscriber
	dispatcher uow.Dispatcher
	uow        Transactor
	books      repositories.BookRepository
	pages      repositories.PageRepository
	sessions   repositories.SessionRepository
	tracker    ReparseTracker
	log        logger.Logger
	timeout    time.Duration
	now        func() time.Time

	uploads    metric.Int64Counter
	duplicates metric.Int64Counter
}

// NewUploader returns an Uploader whose uploads give up after timeout.
// A non-positive timeout means DefaultUploadTimeout.
func NewUploader(d UploaderDeps, timeout time.Duration) *Uploader {
	if timeout <= 0 {
		timeout = DefaultUploadTimeout
	}
	meter := otel.Meter(meterName)
	uploads, _ := meter.Int64Counter("library.uploads",
		metric.WithDescription("Settled uploads by outcome"))
	duplicates, _ := meter.Int64Counter("library.reparse_duplicates",
		metric.WithDescription("Re-parse requests sent while another was in flight for the same source"))

	return &Uploader{
		listener:   d.Listener,
		dispatcher: d.Dispatcher,
		uow:        d.UnitOfWork,
		books:      d.Books,
		pages:      d.Pages,
		sessions:   d.Sessions,
		tracker:    d.Tracker,
		log:        d.Log,
		timeout:    timeout,
		now:        time.Now,
		uploads:    uploads,
		duplicates: duplicates,
	}
}

// UploadByURL asks the parser for fileURL and returns the reader's session
// for the resulting book. It blocks until the upload settles. Cancelling ctx
// does not abort the upload; only the timeout does.
func (u *Uploader) UploadByURL(ctx context.Context, userID uuid.UUID, req UploadRequest) (*SessionView, error) {
	if err := domainsvcs.ValidateUpload(req.FileURL, req.FileName); err != nil {
		return nil, err
	}

	st := newUploadState(uuid.NewString(), userID, req)
	ctx = logger.ContextWith(context.WithoutCancel(ctx), "upload_id", st.requestID, "user_id", userID)
	started := u.now()

	timer := time.AfterFunc(u.timeout, func() { u.expire(ctx, st) })
	defer timer.Stop()

	u.start(ctx, st)

	view, err := st.result()
	u.uploads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", st.current().String())))
	if err != nil {
		u.log.WarnContext(ctx, "upload failed",
			"outcome", st.current().String(),
			"duration", u.now().Sub(started), "error", err)
		return nil, err
	}
	u.log.InfoContext(ctx, "upload resolved",
		"session_id", view.ID, "book_id", view.Book.ID,
		"duration", u.now().Sub(started))
	return view, nil
}

// start registers the first-round handlers and then sends the parse command.
func (u *Uploader) start(ctx context.Context, st *uploadState) {
	handlers := []registration{
		{libevents.KindSourceParsed, events.Typed(u.handlerName(st, libevents.KindSourceParsed),
			func(ctx context.Context, e *libevents.SourceParsedEvent) error {
				return u.onParsed(ctx, st, phaseAwaitingParse, *e)
			})},
		{libevents.KindSourceParsingFailed, events.Typed(u.handlerName(st, libevents.KindSourceParsingFailed),
			func(ctx context.Context, e *libevents.SourceParsingFailedEvent) error {
				return u.onFailed(ctx, st, phaseAwaitingParse, e, &ParsingFailedError{
					RequestID: e.RequestID, Reason: e.Reason,
				})
			})},
		{libevents.KindSourceAlreadyParsed, events.Typed(u.handlerName(st, libevents.KindSourceAlreadyParsed),
			func(ctx context.Context, e *libevents.SourceAlreadyParsedEvent) error {
				return u.onAlreadyParsed(ctx, st, *e)
			})},
	}
	if err := u.trackAll(ctx, st, handlers); err != nil {
		u.abort(ctx, st, fmt.Errorf("register outcome handlers: %w", err))
		return
	}
	if !st.transition(phaseInit, phaseAwaitingParse) {
		u.releaseAll(ctx, st)
		return
	}

	cmd := libevents.RequestSourceParsingCommand{
		RequestID: st.requestID,
		FileURL:   st.req.FileURL,
		FileName:  st.req.FileName,
	}
	if err := u.dispatcher.Dispatch(ctx, cmd); err != nil && st.claim(phaseAwaitingParse) {
		u.abort(ctx, st, fmt.Errorf("dispatch parse command: %w", err))
	}
}

func (u *Uploader) onParsed(ctx context.Context, st *uploadState, from phase, e libevents.SourceParsedEvent) error {
	if !st.matches(e) || !st.claim(from) {
		return nil
	}
	u.releaseAll(ctx, st)

	view, err := u.materialize(ctx, st, e)
	if from == phaseAwaitingReparse {
		u.finishReparse(ctx, st)
	}
	st.settle(view, err, nil)
	return nil
}

func (u *Uploader) onFailed(ctx context.Context, st *uploadState, from phase, e events.Correlated, failure *ParsingFailedError) error {
	if !st.matches(e) || !st.claim(from) {
		return nil
	}
	u.releaseAll(ctx, st)
	if from == phaseAwaitingReparse {
		u.finishReparse(ctx, st)
	}
	st.settle(nil, failure, nil)
	return nil
}

// onAlreadyParsed reuses the existing book when there is one. Otherwise the
// source was registered by an attempt that never materialized, and the
// upload asks for a re-parse under the same request ID.
func (u *Uploader) onAlreadyParsed(ctx context.Context, st *uploadState, e libevents.SourceAlreadyParsedEvent) error {
	if !st.matches(e) || !st.claim(phaseAwaitingParse) {
		return nil
	}
	u.releaseAll(ctx, st)

	book, err := u.books.FindBySourceID(ctx, nil, e.SourceID)
	switch {
	case err == nil:
		view, err := u.attach(ctx, st, book.ID)
		st.settle(view, err, nil)
	case errors.Is(err, domain.ErrBookNotFound):
		u.reparse(ctx, st, e.SourceID)
	default:
		st.settle(nil, fmt.Errorf("find book for source %s: %w", e.SourceID, err), nil)
	}
	return nil
}

func (u *Uploader) reparse(ctx context.Context, st *uploadState, sourceID string) {
	u.beginReparse(ctx, st, sourceID)

	handlers := []registration{
		{libevents.KindSourceReparsed, events.Typed(u.handlerName(st, libevents.KindSourceReparsed),
			func(ctx context.Context, e *libevents.SourceReparsedEvent) error {
				return u.onParsed(ctx, st, phaseAwaitingReparse, e.Parsed())
			})},
		{libevents.KindSourceReparsingFailed, events.Typed(u.handlerName(st, libevents.KindSourceReparsingFailed),
			func(ctx context.Context, e *libevents.SourceReparsingFailedEvent) error {
				return u.onFailed(ctx, st, phaseAwaitingReparse, e, &ParsingFailedError{
					RequestID: e.RequestID, SourceID: e.SourceID, Reason: e.Reason, Reparse: true,
				})
			})},
	}
	if err := u.trackAll(ctx, st, handlers); err != nil {
		u.finishReparse(ctx, st)
		u.abort(ctx, st, fmt.Errorf("register re-parse handlers: %w", err))
		return
	}
	if !st.transition(phaseWorking, phaseAwaitingReparse) {
		u.releaseAll(ctx, st)
		u.finishReparse(ctx, st)
		return
	}

	cmd := libevents.RequestSourceReparsingCommand{
		RequestID: st.requestID,
		SourceID:  sourceID,
		FileURL:   st.req.FileURL,
		FileName:  st.req.FileName,
	}
	if err := u.dispatcher.Dispatch(ctx, cmd); err != nil && st.claim(phaseAwaitingReparse) {
		u.finishReparse(ctx, st)
		u.abort(ctx, st, fmt.Errorf("dispatch re-parse command: %w", err))
	}
}

// beginReparse records this upload as the re-parse owner of sourceID. The
// parser is not known to deduplicate, so a second concurrent re-parse is
// logged and counted but still sent; the unique source constraint on books
// decides which materialization wins.
func (u *Uploader) beginReparse(ctx context.Context, st *uploadState, sourceID string) {
	if u.tracker == nil {
		return
	}
	holder, err := u.tracker.Begin(ctx, sourceID, st.requestID)
	if err != nil {
		u.log.WarnContext(ctx, "reparse tracker unavailable", "source_id", sourceID, "error", err)
		return
	}
	if holder != st.requestID {
		u.duplicates.Add(ctx, 1)
		u.log.WarnContext(ctx, "concurrent re-parse for source",
			"source_id", sourceID, "in_flight_upload_id", holder)
		return
	}
	st.holdReparse(sourceID)
}

func (u *Uploader) finishReparse(ctx context.Context, st *uploadState) {
	sourceID := st.dropReparse()
	if sourceID == "" || u.tracker == nil {
		return
	}
	if err := u.tracker.Finish(ctx, sourceID); err != nil {
		u.log.WarnContext(ctx, "release re-parse claim", "source_id", sourceID, "error", err)
	}
}

// materialize stores the parsed pages, the book and the reader's session in
// one unit of work. A source without pages is rejected before the
// transaction starts.
func (u *Uploader) materialize(ctx context.Context, st *uploadState, e libevents.SourceParsedEvent) (*SessionView, error) {
	if len(e.Pages) == 0 {
		return nil, fmt.Errorf("source %s: %w", e.SourceID, domain.ErrEmptyCatalog)
	}

	var view *SessionView
	err := u.uow.Do(ctx, func(ctx context.Context, s *uow.Session) error {
		refs := make([]libevents.PageRef, 0, len(e.Pages))
		for _, sp := range e.Pages {
			page := models.NewPage(sp.Titles, sp.Content)
			if err := u.pages.Save(ctx, s, page); err != nil {
				return fmt.Errorf("save page: %w", err)
			}
			refs = append(refs, libevents.PageRef{PageID: page.ID})
		}

		now := u.now()
		book, err := models.NewBook(e.SourceID, e.Meta, refs, now)
		if err != nil {
			return err
		}
		if err := u.books.Save(ctx, s, book); err != nil {
			return fmt.Errorf("save book: %w", err)
		}

		session := models.NewSession(st.userID, book, st.req.TelegramID, st.req.FileName, now)
		if err := u.sessions.Save(ctx, s, session); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		view = newSessionView(session, book)
		return nil
	})
	if errors.Is(err, domain.ErrBookAlreadyExists) {
		// Another upload materialized the same source first.
		book, findErr := u.books.FindBySourceID(ctx, nil, e.SourceID)
		if findErr != nil {
			return nil, fmt.Errorf("find book for source %s: %w", e.SourceID, findErr)
		}
		return u.attach(ctx, st, book.ID)
	}
	if err != nil {
		return nil, err
	}
	return view, nil
}

// attach returns the reader's live session for bookID, creating it when
// there is none.
func (u *Uploader) attach(ctx context.Context, st *uploadState, bookID uuid.UUID) (*SessionView, error) {
	var view *SessionView
	err := u.uow.Do(ctx, func(ctx context.Context, s *uow.Session) error {
		book, err := u.books.FindByID(ctx, s, bookID)
		if err != nil {
			return fmt.Errorf("find book: %w", err)
		}
		session, err := u.sessions.FindOne(ctx, s, repositories.SessionFilter{UserID: st.userID, BookID: book.ID})
		if errors.Is(err, domain.ErrSessionNotFound) {
			session = models.NewSession(st.userID, book, st.req.TelegramID, st.req.FileName, u.now())
			if err := u.sessions.Save(ctx, s, session); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("find session: %w", err)
		}
		view = newSessionView(session, book)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// expire settles the upload with a timeout, removes whatever handlers it
// still has and gives up its re-parse claim. Work already running on the
// parser is not cancelled.
func (u *Uploader) expire(ctx context.Context, st *uploadState) {
	st.settle(nil, domain.ErrUploadTimedOut, func() {
		u.releaseAll(ctx, st)
		u.finishReparse(ctx, st)
	})
}

// abort releases every handler and settles with err.
func (u *Uploader) abort(ctx context.Context, st *uploadState, err error) {
	u.releaseAll(ctx, st)
	st.settle(nil, err, nil)
}

// trackAll registers handlers in order and stops at the first failure. The
// handlers registered so far stay in st for the caller to release.
func (u *Uploader) trackAll(ctx context.Context, st *uploadState, handlers []registration) error {
	for _, r := range handlers {
		if err := u.track(ctx, st, r.kind, r.handler); err != nil {
			return err
		}
	}
	return nil
}

func (u *Uploader) track(ctx context.Context, st *uploadState, kind events.Kind, h *events.Handler) error {
	if !st.add(kind, h) {
		return errUploadSettled
	}
	defer st.doneTracking()
	if err := u.listener.Register(ctx, kind, h, events.Options{Ack: events.AckAutomatic}); err != nil {
		st.remove(h)
		return err
	}
	// The upload may have been released while the listener was binding.
	if !st.holds(h) {
		u.unregister(ctx, kind, h)
	}
	return nil
}

// releaseAll unregisters every handler of the upload. Failures are logged
// per handler and never stop the others.
func (u *Uploader) releaseAll(ctx context.Context, st *uploadState) {
	for _, r := range st.release() {
		u.unregister(ctx, r.kind, r.handler)
	}
}

func (u *Uploader) unregister(ctx context.Context, kind events.Kind, h *events.Handler) {
	if err := u.listener.Unregister(ctx, kind, h); err != nil {
		u.log.ErrorContext(ctx, "unregister upload handler",
			"handler", h.Name(), "routing_key", kind.RoutingKey(), "error", err)
	}
}

func (u *Uploader) handlerName(st *uploadState, kind events.Kind) string {
	return "upload." + st.requestID + "." + kind.TypeName
}
