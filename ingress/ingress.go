// Package ingress receives host events over HTTP and NATS, resolves session
// identity and forwards them to the tracker adapters.
package ingress

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maxpert/padhook/telemetry"
	"github.com/maxpert/padhook/tracker"
	"github.com/rs/zerolog/log"
)

// Event types carried in the NATS envelope
const (
	TypeClientReady       = "CLIENT_READY"
	TypeUserChanges       = "USER_CHANGES"
	TypeRevisionCommitted = "REVISION_COMMITTED"
	TypeDisconnect        = "DISCONNECT"
)

var (
	// ErrUnknownSession is returned when identity must come from a session the directory does not know
	ErrUnknownSession = errors.New("unknown session")
	// ErrUnknownEventType is returned for envelopes with an unsupported type
	ErrUnknownEventType = errors.New("unknown event type")
)

// Event is the host event wire format. Fields unused by a type are ignored.
type Event struct {
	Type      string `json:"type,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	PadID     string `json:"padId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	AuthorID  string `json:"authorId,omitempty"`
	Revision  int64  `json:"revision,omitempty"`
	ClientIP  string `json:"clientIp,omitempty"`
}

// Handler receives validated events. *tracker.Tracker implements it.
type Handler interface {
	OnUserChange(ev tracker.UserChange)
	OnRevisionCommitted(ev tracker.RevisionCommit)
	OnUserDisconnect(ev tracker.Disconnect)
}

// Ingress turns host events into adapter calls
type Ingress struct {
	handler  Handler
	sessions *SessionDirectory
}

// New creates an ingress forwarding to handler
func New(handler Handler, sessions *SessionDirectory) *Ingress {
	return &Ingress{handler: handler, sessions: sessions}
}

// Sessions returns the session directory
func (in *Ingress) Sessions() *SessionDirectory {
	return in.sessions
}

// Handle dispatches an event by its type
func (in *Ingress) Handle(ev Event) error {
	switch strings.ToUpper(ev.Type) {
	case TypeClientReady:
		return in.ClientReady(ev)
	case TypeUserChanges:
		return in.UserChanges(ev)
	case TypeRevisionCommitted:
		return in.RevisionCommitted(ev)
	case TypeDisconnect:
		return in.Disconnected(ev)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, ev.Type)
	}
}

// ClientReady records a connected session
func (in *Ingress) ClientReady(ev Event) error {
	telemetry.EventsTotal.With(tracker.KindClientReady).Inc()

	if ev.SessionID == "" {
		telemetry.DroppedEventsTotal.With(tracker.DropMissingIdentity).Inc()
		log.Warn().Str("pad", ev.PadID).Msg("Client ready without session id")
		return nil
	}

	in.sessions.Put(ev.SessionID, Session{
		PadID:    ev.PadID,
		UserID:   ev.UserID,
		ClientIP: ev.ClientIP,
	})
	log.Debug().Str("session", ev.SessionID).Str("pad", ev.PadID).Msg("Session registered")
	return nil
}

// UserChanges forwards an edit, filling identity from the session
func (in *Ingress) UserChanges(ev Event) error {
	if err := in.resolve(&ev); err != nil {
		telemetry.DroppedEventsTotal.With(tracker.DropUnknownSession).Inc()
		log.Warn().Err(err).Str("session", ev.SessionID).Int64("revision", ev.Revision).Msg("Dropping user changes")
		return nil
	}

	in.handler.OnUserChange(tracker.UserChange{
		DocID:    ev.PadID,
		UserID:   ev.UserID,
		Revision: ev.Revision,
		ClientIP: ev.ClientIP,
	})
	return nil
}

// RevisionCommitted forwards a persisted revision
func (in *Ingress) RevisionCommitted(ev Event) error {
	author := ev.AuthorID
	if author == "" {
		author = ev.UserID
	}

	in.handler.OnRevisionCommitted(tracker.RevisionCommit{
		DocID:    ev.PadID,
		AuthorID: author,
		Head:     ev.Revision,
	})
	return nil
}

// Disconnected forwards a departure and forgets the session
func (in *Ingress) Disconnected(ev Event) error {
	if err := in.resolve(&ev); err != nil {
		log.Debug().Err(err).Str("session", ev.SessionID).Msg("Disconnect for unknown session")
	}
	if ev.SessionID != "" {
		in.sessions.Forget(ev.SessionID)
	}

	in.handler.OnUserDisconnect(tracker.Disconnect{
		DocID:  ev.PadID,
		UserID: ev.UserID,
	})
	return nil
}

// resolve fills missing pad, user and client ip from the session directory
func (in *Ingress) resolve(ev *Event) error {
	if ev.SessionID == "" {
		return nil
	}

	s, ok := in.sessions.Get(ev.SessionID)
	if !ok {
		if ev.PadID != "" && ev.UserID != "" {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrUnknownSession, ev.SessionID)
	}

	if ev.PadID == "" {
		ev.PadID = s.PadID
	}
	if ev.UserID == "" {
		ev.UserID = s.UserID
	}
	if ev.ClientIP == "" {
		ev.ClientIP = s.ClientIP
	}
	return nil
}
