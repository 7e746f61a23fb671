// Package source delivers bank messages to the reconciler and hands
// statement requests back to the bank gateway.
package source

import (
	"context"
	"errors"
	"time"

	"tuleva/camt-reconciler/internal/models"
)

// ErrEnvelopeNotFound is returned when acknowledging an unknown envelope
var ErrEnvelopeNotFound = errors.New("envelope not found")

// Envelope is one message waiting to be processed
type Envelope struct {
	ID string
	// Type is the sniffed message type; MessageTypeUnknown when the payload
	// has no recognisable camt namespace.
	Type       models.MessageType
	MessageID  string
	Payload    []byte
	ReceivedAt time.Time
}

// Acknowledgement confirms that a statement request was handed over
type Acknowledgement struct {
	RequestID   string
	Location    string
	SubmittedAt time.Time
}

// Source is the bank gateway as seen by the reconciler
type Source interface {
	// FetchPending returns the messages that have been neither processed nor failed
	FetchPending(ctx context.Context) ([]Envelope, error)
	// RequestStatement submits an encoded camt.060 request
	RequestStatement(ctx context.Context, payload []byte) (Acknowledgement, error)
	// Acknowledge marks an envelope as processed, or as failed when failed is true
	Acknowledge(ctx context.Context, envelopeID string, failed bool) error
}
