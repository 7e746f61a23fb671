package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tuleva/camt-reconciler/internal/fileutils"
	"tuleva/camt-reconciler/internal/logging"
	"tuleva/camt-reconciler/internal/models"
	"tuleva/camt-reconciler/internal/xmlutils"
)

// Sub-directories of a Directory source root
const (
	InboxDir     = "inbox"
	OutboxDir    = "outbox"
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

const messageExtension = ".xml"

// Directory is a Source backed by a directory tree. The gateway drops
// statements into inbox/; acknowledged files move to processed/ or failed/
// and statement requests are written to outbox/.
type Directory struct {
	root   string
	logger logging.Logger
	now    func() time.Time
}

// NewDirectory creates the directory layout under root if needed
func NewDirectory(root string, logger logging.Logger) (*Directory, error) {
	for _, dir := range []string{InboxDir, OutboxDir, ProcessedDir, FailedDir} {
		if err := fileutils.EnsureDirectoryExists(filepath.Join(root, dir)); err != nil {
			return nil, err
		}
	}
	return &Directory{root: root, logger: logger, now: time.Now}, nil
}

// Root returns the base directory
func (d *Directory) Root() string {
	return d.root
}

// FetchPending reads every message in the inbox, oldest file name first
func (d *Directory) FetchPending(ctx context.Context) ([]Envelope, error) {
	inbox := filepath.Join(d.root, InboxDir)
	files, err := fileutils.ListFilesWithExtension(inbox, messageExtension)
	if err != nil {
		return nil, fmt.Errorf("error listing inbox: %w", err)
	}

	envelopes := make([]Envelope, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		env, err := d.readEnvelope(file)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, env)
	}

	d.logger.Debug("Fetched pending messages",
		logging.F(logging.FieldInputFile, inbox),
		logging.F(logging.FieldCount, len(envelopes)))
	return envelopes, nil
}

func (d *Directory) readEnvelope(file string) (Envelope, error) {
	payload, err := fileutils.ReadFile(file)
	if err != nil {
		return Envelope{}, err
	}
	info, err := os.Stat(file)
	if err != nil {
		return Envelope{}, fmt.Errorf("error reading file info %s: %w", file, err)
	}

	env := Envelope{
		ID:         filepath.Base(file),
		Payload:    payload,
		ReceivedAt: info.ModTime().UTC(),
	}

	// Sniffing is best effort: an unreadable payload is still delivered so
	// the decoder can report it as malformed.
	if ns, err := xmlutils.RootNamespace(payload); err == nil {
		if t, _, ok := models.ParseNamespace(ns); ok {
			env.Type = t
		}
	}
	if header, err := xmlutils.SniffHeader(payload); err == nil {
		env.MessageID = header.MessageID
	} else {
		d.logger.Debug("Could not sniff message header",
			logging.F(logging.FieldEnvelopeID, env.ID),
			logging.F(logging.FieldError, err))
	}
	return env, nil
}

// RequestStatement writes the request into the outbox, named after its message id
func (d *Directory) RequestStatement(_ context.Context, payload []byte) (Acknowledgement, error) {
	header, err := xmlutils.SniffHeader(payload)
	if err != nil {
		return Acknowledgement{}, fmt.Errorf("invalid statement request: %w", err)
	}

	location := filepath.Join(d.root, OutboxDir, header.MessageID+messageExtension)
	if fileutils.FileExists(location) {
		return Acknowledgement{}, fmt.Errorf("statement request %s already submitted", header.MessageID)
	}
	if err := fileutils.WriteFile(location, payload, models.PermissionReportFile); err != nil {
		return Acknowledgement{}, err
	}

	d.logger.Info("Statement request submitted",
		logging.F(logging.FieldMessageID, header.MessageID),
		logging.F(logging.FieldOutputFile, location))
	return Acknowledgement{
		RequestID:   header.MessageID,
		Location:    location,
		SubmittedAt: d.now().UTC(),
	}, nil
}

// Acknowledge moves the envelope out of the inbox
func (d *Directory) Acknowledge(_ context.Context, envelopeID string, failed bool) error {
	if envelopeID == "" || strings.ContainsAny(envelopeID, `/\`) || envelopeID != filepath.Base(envelopeID) {
		return fmt.Errorf("%w: invalid id %q", ErrEnvelopeNotFound, envelopeID)
	}

	src := filepath.Join(d.root, InboxDir, envelopeID)
	if !fileutils.FileExists(src) {
		return fmt.Errorf("%w: %s", ErrEnvelopeNotFound, envelopeID)
	}

	target := ProcessedDir
	if failed {
		target = FailedDir
	}
	if _, err := fileutils.MoveFile(src, filepath.Join(d.root, target)); err != nil {
		return err
	}

	d.logger.Debug("Acknowledged message",
		logging.F(logging.FieldEnvelopeID, envelopeID),
		logging.F(logging.FieldStatus, target))
	return nil
}
