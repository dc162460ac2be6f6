package broker

import (
	"context"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
)

// WidgetPayload is the callback payload delivered by the embedded identity
// widget. Only the credential field is meaningful; anything else the widget
// attaches is ignored.
type WidgetPayload struct {
	Credential string
}

// CredentialHandler receives the validated credential from the widget flow.
type CredentialHandler func(ctx context.Context, credential GoogleIDToken)

// WidgetBroker implements the token-widget strategy: the provider renders its
// own UI element and invokes the registered callback with a signed credential.
// The broker registers that callback exactly once per mount and forwards the
// credential; it never contacts the backend itself.
type WidgetBroker struct {
	verifier *oidc.IDTokenVerifier

	mu      sync.Mutex
	handler CredentialHandler
}

type WidgetOption func(*WidgetBroker)

// WithIDTokenVerifier enables local verification of widget credentials
// against the provider's signing keys before forwarding. Without it the
// broker forwards any well-formed token and leaves verification to the
// backend exchange.
func WithIDTokenVerifier(verifier *oidc.IDTokenVerifier) WidgetOption {
	return func(b *WidgetBroker) {
		b.verifier = verifier
	}
}

func NewWidgetBroker(options ...WidgetOption) *WidgetBroker {
	b := &WidgetBroker{}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// Bind registers the credential handler. Binding twice without an Unbind is
// an error: the widget callback must be registered exactly once per mount.
func (b *WidgetBroker) Bind(handler CredentialHandler) error {
	if handler == nil {
		return errors.New("[Bind] handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handler != nil {
		return ErrAlreadyBound
	}
	b.handler = handler
	return nil
}

// Unbind releases the registered handler when the login surface unmounts.
func (b *WidgetBroker) Unbind() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = nil
}

// HandleCallback validates the widget payload and forwards the credential to
// the bound handler. An empty payload surfaces ErrNoCredential without any
// backend contact.
func (b *WidgetBroker) HandleCallback(ctx context.Context, payload WidgetPayload) error {
	if err := validateIDTokenShape(payload.Credential); err != nil {
		return errors.Wrap(err, "[HandleCallback]")
	}

	if b.verifier != nil {
		if _, err := b.verifier.Verify(ctx, payload.Credential); err != nil {
			return errors.Wrapf(ErrProvider, "[HandleCallback] id token rejected: %v", err)
		}
	}

	b.mu.Lock()
	handler := b.handler
	b.mu.Unlock()

	if handler == nil {
		return ErrHandlerMissing
	}
	handler(ctx, GoogleIDToken{Token: payload.Credential})
	return nil
}
