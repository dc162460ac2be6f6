package broker

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jmcveigh/portfolio-auth/broker/statestore"
	"github.com/jmcveigh/portfolio-auth/providers"
)

// MessageTypeOAuthCallback tags the one message the popup flow accepts.
const MessageTypeOAuthCallback = "oauth-callback"

const (
	defaultPollInterval = 500 * time.Millisecond
	stateTokenBytes     = 32
)

// Message is the cross-context payload delivered by the popup when the
// provider redirects back to the application.
type Message struct {
	Origin string // Origin of the sending context
	Type   string // Must equal MessageTypeOAuthCallback to be considered
	Code   string // Authorization code on success
	State  string // Echoed CSRF state token
	Error  string // Provider-reported error, e.g. access_denied
}

// Popup is an open browsing context. Messages delivers cross-context
// payloads; Closed reports whether the user has dismissed the window. The
// handle never escapes the broker beyond a close-when-done contract.
type Popup interface {
	Messages() <-chan Message
	Closed() bool
	Close()
}

// Opener creates browsing contexts at provider authorize URLs.
type Opener interface {
	Open(url string) (Popup, error)
}

// PopupBroker implements the popup OAuth strategy. Login blocks until the
// negotiation resolves one way or the other: a matching message, a CSRF
// mismatch, a provider error, the user closing the popup, or context
// cancellation. Every exit path tears down the poll timer and erases the
// stored state token.
type PopupBroker struct {
	entry        *providers.Entry
	opener       Opener
	states       statestore.Repo
	origin       string
	pollInterval time.Duration
	nowFunc      func() time.Time
	logger       zerolog.Logger
}

type PopupOption func(*PopupBroker)

func WithPollInterval(interval time.Duration) PopupOption {
	return func(b *PopupBroker) {
		b.pollInterval = interval
	}
}

func WithNowFunc(now func() time.Time) PopupOption {
	return func(b *PopupBroker) {
		b.nowFunc = now
	}
}

func WithPopupLogger(logger zerolog.Logger) PopupOption {
	return func(b *PopupBroker) {
		b.logger = logger
	}
}

func NewPopupBroker(entry *providers.Entry, opener Opener, states statestore.Repo, origin string, options ...PopupOption) *PopupBroker {
	b := &PopupBroker{
		entry:        entry,
		opener:       opener,
		states:       states,
		origin:       origin,
		pollInterval: defaultPollInterval,
		nowFunc:      time.Now,
		logger:       zerolog.Nop(),
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// Login runs the popup negotiation and returns the authorization code.
func (b *PopupBroker) Login(ctx context.Context) (GitHubAuthCode, error) {
	if !b.entry.Configured() {
		return GitHubAuthCode{}, errors.Wrap(ErrNotConfigured, "[Login]")
	}

	state := generateRandomString(stateTokenBytes)
	if err := b.states.Put(&statestore.PendingState{Token: state, CreatedAt: b.nowFunc()}); err != nil {
		return GitHubAuthCode{}, errors.Wrap(err, "[Login] store state")
	}
	// Partially completed state must not outlive the attempt that created it.
	defer func() { _ = b.states.Clear() }()

	popup, err := b.opener.Open(b.entry.AuthorizeURL(state))
	if err != nil {
		return GitHubAuthCode{}, errors.Wrap(err, "[Login] open popup")
	}
	defer popup.Close()

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	messages := popup.Messages()
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				// Messaging context torn down without a callback.
				messages = nil
				continue
			}
			if !b.accepts(msg) {
				continue
			}
			return b.complete(msg)

		case <-ticker.C:
			// A message arriving in the same tick as closure detection wins.
			select {
			case msg, ok := <-messages:
				if ok && b.accepts(msg) {
					return b.complete(msg)
				}
			default:
			}
			if popup.Closed() {
				// User-initiated cancellation is not a failure.
				return GitHubAuthCode{}, ErrUserCancelled
			}

		case <-ctx.Done():
			return GitHubAuthCode{}, errors.Wrap(ctx.Err(), "[Login]")
		}
	}
}

// accepts filters messages by origin and payload tag; anything else is
// ignored without resolving the flow.
func (b *PopupBroker) accepts(msg Message) bool {
	if msg.Origin != b.origin {
		b.logger.Warn().Str("origin", msg.Origin).Msg("ignoring message from foreign origin")
		return false
	}
	return msg.Type == MessageTypeOAuthCallback
}

// complete consumes the stored state exactly once and resolves the flow. The
// stored token is erased whether or not it matches.
func (b *PopupBroker) complete(msg Message) (GitHubAuthCode, error) {
	if msg.Error != "" {
		return GitHubAuthCode{}, errors.Wrapf(ErrProvider, "[complete] %s", msg.Error)
	}

	stored, err := b.states.Take()
	if err != nil || stored == nil || msg.State == "" || stored.Token != msg.State {
		return GitHubAuthCode{}, errors.Wrap(ErrCsrfMismatch, "[complete]")
	}

	if msg.Code == "" {
		return GitHubAuthCode{}, errors.Wrap(ErrNoCredential, "[complete]")
	}
	return GitHubAuthCode{Code: msg.Code}, nil
}

// generateRandomString creates a random base64url string.
func generateRandomString(length int) string {
	buf := make([]byte, length)
	rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}
