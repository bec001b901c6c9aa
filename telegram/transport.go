// Package telegram defines the chat transport boundary and the connection
// management built on top of it. The MTProto session itself (credentials,
// login codes, session files) lives in an external gateway process; this
// package only consumes the transport operations the monitor needs.
package telegram

import (
	"context"
	"time"
)

// Message is a single group message as fetched from the transport.
// It is immutable once fetched: the poller creates it, dispatches it once,
// and never mutates it.
type Message struct {
	ID    int64
	Date  time.Time
	Text  string
	Media string // opaque media reference, empty when the message carries none
}

// HasMedia reports whether the message carries downloadable media.
func (m Message) HasMedia() bool { return m.Media != "" }

// Transport is the set of session operations the monitor consumes.
// Implementations must report invalid/expired sessions as a SessionError
// and generic network hiccups as a TransientError so the connection
// manager can tell them apart.
type Transport interface {
	// Connect opens the transport and verifies the session is usable.
	Connect(ctx context.Context) error
	// Me performs a cheap authenticated round trip, used for health checks.
	Me(ctx context.Context) error
	// RecentMessages lists messages in chatID newer than since, newest
	// first, capped at limit.
	RecentMessages(ctx context.Context, chatID int64, since time.Time, limit int) ([]Message, error)
	// DownloadMedia fetches the media behind ref into the local file dest.
	DownloadMedia(ctx context.Context, ref, dest string) error
	// SendFile delivers the file at path to the named recipient.
	SendFile(ctx context.Context, recipient, path string) error
	// Dialogs lists the chats visible to the session.
	Dialogs(ctx context.Context) ([]Dialog, error)
	// Close tears down the transport. Safe to call when not connected.
	Close() error
}

// DialogKind tags the kind of a chat entity. Each kind has exactly one
// id-normalization rule (see Dialog.ChatID).
type DialogKind int

const (
	KindUser DialogKind = iota
	KindGroup
	KindChannel // includes megagroups
)

func (k DialogKind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindGroup:
		return "group"
	case KindChannel:
		return "channel"
	default:
		return "unknown"
	}
}

// Dialog is one chat visible to the session.
type Dialog struct {
	Kind  DialogKind
	ID    int64 // bare entity id, always positive
	Title string
}

// channelIDBase is the marker prefix Telegram applies to channel and
// megagroup ids (the "-100..." form).
const channelIDBase int64 = 1_000_000_000_000

// ChatID returns the canonical chat id for the dialog: users keep their id,
// basic groups are negated, channels/megagroups get the -100 prefix form.
func (d Dialog) ChatID() int64 {
	switch d.Kind {
	case KindGroup:
		return -d.ID
	case KindChannel:
		return -(channelIDBase + d.ID)
	default:
		return d.ID
	}
}
