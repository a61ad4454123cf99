// Package router implements point-to-point delivery of private messages and
// typing signals between identified connections.
package router

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lanrelay/relay/internal/constants"
	"github.com/lanrelay/relay/internal/event"
	"github.com/lanrelay/relay/internal/metrics"
	"github.com/lanrelay/relay/internal/registry"
	"github.com/lanrelay/relay/internal/relayerrors"
)

// Conn is a routable connection: identity handle plus outbound delivery.
type Conn interface {
	registry.Conn
	SafeSend(data []byte) bool
}

// Router validates and delivers private messages. It is stateless; the
// identity registry is the only source of truth for who can receive.
type Router struct {
	reg    *registry.Registry
	logger *zap.SugaredLogger
	now    func() time.Time
}

// New creates a message router over the given registry.
func New(reg *registry.Registry, logger *zap.SugaredLogger) *Router {
	return &Router{
		reg:    reg,
		logger: logger.With("component", "router"),
		now:    time.Now,
	}
}

// SendPrivateMessage validates and delivers a private message from sender to
// the named recipient, echoing the routed message back to the sender so both
// ends render the same authoritative timestamp.
//
// Validation short-circuits in a fixed order: sender identity, recipient
// present, non-empty text, recipient online. The first failure is returned as
// a RelayError and nothing is delivered.
func (r *Router) SendPrivateMessage(sender Conn, to, text string) error {
	senderName, ok := r.reg.WhoHolds(sender)
	if !ok {
		return r.reject(relayerrors.ErrNotIdentified())
	}
	if to == "" {
		return r.reject(relayerrors.ErrMissingRecipient())
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return r.reject(relayerrors.ErrEmptyText())
	}
	if len(trimmed) > constants.MaxMessageTextLength {
		return r.reject(relayerrors.ErrInvalidPayload(
			fmt.Errorf("message of %d bytes exceeds limit %d", len(trimmed), constants.MaxMessageTextLength)))
	}

	target, ok := r.lookup(to)
	if !ok {
		return r.reject(relayerrors.ErrRecipientOffline(to))
	}

	data := event.MustEncode(event.ReceiveMessage, event.MessagePayload{
		From: senderName,
		To:   to,
		Text: trimmed,
		Time: r.now().Format(constants.MessageTimeLayout),
	})

	// Recipient and sender echo are independent: a slow sender must not cost
	// the recipient their copy, and vice versa.
	if !target.SafeSend(data) {
		r.logger.Warnw("Dropped message to slow recipient", "to", to)
	}
	if !sender.SafeSend(data) {
		r.logger.Warnw("Dropped message echo to slow sender", "from", senderName)
	}

	metrics.MessagesRouted.Inc()
	return nil
}

// SendTyping relays a typing signal to the named recipient. The signal is
// fire-and-forget: an anonymous sender, a missing recipient, or an offline
// recipient all drop it silently.
func (r *Router) SendTyping(sender Conn, to string, isTyping bool) {
	senderName, ok := r.reg.WhoHolds(sender)
	if !ok {
		return
	}
	target, ok := r.lookup(to)
	if !ok {
		return
	}

	target.SafeSend(event.MustEncode(event.TypingSignal, event.TypingPayload{
		From:     senderName,
		IsTyping: isTyping,
	}))
	metrics.TypingSignals.Inc()
}

// lookup resolves a recipient name to its routable connection.
func (r *Router) lookup(name string) (Conn, bool) {
	if name == "" {
		return nil, false
	}
	regConn, ok := r.reg.Lookup(name)
	if !ok {
		return nil, false
	}
	conn, ok := regConn.(Conn)
	return conn, ok
}

// reject records a user-visible routing rejection and passes it through.
func (r *Router) reject(err *relayerrors.RelayError) error {
	metrics.RoutingErrors.WithLabelValues(string(err.Code)).Inc()
	r.logger.Debugw("Rejected message", "code", err.Code, "reason", err.Message)
	return err
}
