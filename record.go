package transit

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/docport/transit/ident"
	"github.com/docport/transit/store"
)

// ReceiveRequest describes an inbound document transmission.
type ReceiveRequest struct {
	// AccountID is the receiving account. Zero leaves the record
	// unattributed for later diagnosis.
	AccountID ident.AccountID
	// Sender and Receiver are the participant identifiers from the
	// transport envelope.
	Sender   ident.ParticipantID
	Receiver ident.ParticipantID
	// ChannelID names the reception channel.
	ChannelID ident.ChannelID
	// DocumentTypeID and ProcessID describe the business document.
	DocumentTypeID ident.DocumentTypeID
	ProcessID      ident.ProcessID
	// ReceptionID is the unique reception identifier. Zero mints a new one.
	ReceptionID ident.ReceptionID
	// InstanceID is the envelope instance identifier, when present.
	InstanceID ident.InstanceID
	// ReceivedAt is when the document arrived. Zero means now.
	ReceivedAt time.Time
	// RemoteHost names the sending access point, when known.
	RemoteHost string

	// Payload is the document content, stored through the payload blob
	// store when configured. Nil records metadata only.
	Payload io.Reader
	// PayloadName names the stored payload. Defaults to the reception id.
	PayloadName string
	// PayloadContentType defaults to "application/octet-stream".
	PayloadContentType string
}

// SubmitRequest describes an outbound document transmission.
type SubmitRequest struct {
	// AccountID is the submitting account.
	AccountID ident.AccountID
	// Sender and Receiver are the participant identifiers.
	Sender   ident.ParticipantID
	Receiver ident.ParticipantID
	// ChannelID names the submission channel.
	ChannelID ident.ChannelID
	// DocumentTypeID and ProcessID describe the business document.
	DocumentTypeID ident.DocumentTypeID
	ProcessID      ident.ProcessID
	// InstanceID is the envelope instance identifier, when present.
	InstanceID ident.InstanceID

	// Payload is the document content to deliver. Stored through the
	// payload blob store when configured.
	Payload io.Reader
	// PayloadName names the stored payload. Defaults to the reception id.
	PayloadName string
	// PayloadContentType defaults to "application/octet-stream".
	PayloadContentType string
}

// Submission is the result of a successful Submit: the created record and
// its position in the delivery queue.
type Submission struct {
	Record  *store.TransmissionRecord
	QueueID store.QueueID
}

const defaultPayloadContentType = "application/octet-stream"

// Receive records an inbound document transmission and publishes a
// DocumentReceived event.
func (s *service) Receive(ctx context.Context, req ReceiveRequest) (record *store.TransmissionRecord, err error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, endSpan := s.otel.startSpan(ctx, "transit.Receive",
		attribute.String("sender", req.Sender.String()),
		attribute.String("receiver", req.Receiver.String()),
	)
	start := time.Now()
	defer func() {
		endSpan(err)
		s.otel.recordReceive(ctx, time.Since(start), err)
	}()

	receptionID := req.ReceptionID
	if receptionID.IsZero() {
		receptionID = ident.NewReceptionID()
	}
	receivedAt := req.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	payloadLocation, err := s.storePayload(ctx, req.Payload, req.PayloadName, req.PayloadContentType, receptionID)
	if err != nil {
		return nil, err
	}

	data := store.RecordData{
		AccountID:       req.AccountID,
		Direction:       store.DirectionIn,
		Sender:          req.Sender,
		Receiver:        req.Receiver,
		ChannelID:       req.ChannelID,
		DocumentTypeID:  req.DocumentTypeID,
		ProcessID:       req.ProcessID,
		ReceptionID:     receptionID,
		InstanceID:      req.InstanceID,
		Received:        receivedAt,
		RemoteHost:      req.RemoteHost,
		PayloadLocation: payloadLocation,
	}

	n, err := s.store.Create(ctx, data)
	if err != nil {
		s.discardPayload(ctx, payloadLocation)
		return nil, fmt.Errorf("create inbound record: %w", err)
	}

	record, err = s.store.ByNumber(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("load created record: %w", err)
	}

	s.logger.Info("inbound document received",
		"message_number", n,
		"account_id", req.AccountID,
		"reception_id", receptionID,
	)

	if err := s.publishReceived(ctx, record); err != nil {
		return record, err
	}
	return record, nil
}

// Submit records an outbound document transmission, queues it for delivery
// and publishes a DocumentQueued event.
func (s *service) Submit(ctx context.Context, req SubmitRequest) (sub *Submission, err error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, endSpan := s.otel.startSpan(ctx, "transit.Submit",
		attribute.String("sender", req.Sender.String()),
		attribute.String("receiver", req.Receiver.String()),
	)
	start := time.Now()
	defer func() {
		endSpan(err)
		s.otel.recordSubmit(ctx, time.Since(start), err)
	}()

	// Outbound records also carry a reception id so the payload location
	// and a later self-send clone can reference it.
	receptionID := ident.NewReceptionID()

	payloadLocation, err := s.storePayload(ctx, req.Payload, req.PayloadName, req.PayloadContentType, receptionID)
	if err != nil {
		return nil, err
	}

	data := store.RecordData{
		AccountID:       req.AccountID,
		Direction:       store.DirectionOut,
		Sender:          req.Sender,
		Receiver:        req.Receiver,
		ChannelID:       req.ChannelID,
		DocumentTypeID:  req.DocumentTypeID,
		ProcessID:       req.ProcessID,
		ReceptionID:     receptionID,
		InstanceID:      req.InstanceID,
		Received:        time.Now().UTC(),
		PayloadLocation: payloadLocation,
	}

	n, err := s.store.Create(ctx, data)
	if err != nil {
		s.discardPayload(ctx, payloadLocation)
		return nil, fmt.Errorf("create outbound record: %w", err)
	}

	queueID, err := s.store.Enqueue(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("enqueue message %s: %w", n, err)
	}

	record, err := s.store.ByNumber(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("load created record: %w", err)
	}

	s.logger.Info("outbound document queued",
		"message_number", n,
		"queue_id", queueID,
		"account_id", req.AccountID,
	)

	sub = &Submission{Record: record, QueueID: queueID}
	if err := s.publishQueued(ctx, record, queueID); err != nil {
		return sub, err
	}
	return sub, nil
}

// storePayload uploads the payload when one is provided. Returns the blob
// location, or "" for metadata-only records.
func (s *service) storePayload(ctx context.Context, payload io.Reader, name, contentType string, receptionID ident.ReceptionID) (string, error) {
	if payload == nil {
		return "", nil
	}
	if s.payloadStore == nil {
		return "", ErrPayloadStoreNotConfigured
	}
	if name == "" {
		name = receptionID.String()
	}
	if contentType == "" {
		contentType = defaultPayloadContentType
	}
	location, err := s.payloadStore.Upload(ctx, name, contentType, payload)
	if err != nil {
		return "", fmt.Errorf("store payload: %w", err)
	}
	return location, nil
}

// discardPayload removes an uploaded payload after a failed record create.
// Best effort: an orphaned blob is logged, not fatal.
func (s *service) discardPayload(ctx context.Context, location string) {
	if location == "" || s.payloadStore == nil {
		return
	}
	if err := s.payloadStore.Delete(ctx, location); err != nil {
		s.logger.Warn("failed to remove orphaned payload", "location", location, "error", err)
	}
}

// publishReceived publishes a DocumentReceived event for a new inbound record.
func (s *service) publishReceived(ctx context.Context, record *store.TransmissionRecord) error {
	err := s.events.DocumentReceived.Publish(ctx, DocumentReceivedEvent{
		MessageNumber: record.MessageNumber,
		AccountID:     record.AccountID,
		Sender:        record.Sender.String(),
		Receiver:      record.Receiver.String(),
		ReceptionID:   record.ReceptionID.String(),
		ReceivedAt:    record.Received,
	})
	if err != nil {
		if s.opts.eventErrorsFatal {
			return &EventPublishError{EventName: "DocumentReceived", Err: err}
		}
		s.opts.safeEventPublishFailure("DocumentReceived", err)
	}
	return nil
}

// publishQueued publishes a DocumentQueued event for a new outbound record.
func (s *service) publishQueued(ctx context.Context, record *store.TransmissionRecord, queueID store.QueueID) error {
	err := s.events.DocumentQueued.Publish(ctx, DocumentQueuedEvent{
		MessageNumber: record.MessageNumber,
		QueueID:       queueID,
		AccountID:     record.AccountID,
		Receiver:      record.Receiver.String(),
		QueuedAt:      time.Now().UTC(),
	})
	if err != nil {
		if s.opts.eventErrorsFatal {
			return &EventPublishError{EventName: "DocumentQueued", Err: err}
		}
		s.opts.safeEventPublishFailure("DocumentQueued", err)
	}
	return nil
}

// Record retrieves a record by message number, unscoped by account.
func (s *service) Record(ctx context.Context, n ident.MessageNumber) (*store.TransmissionRecord, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	return s.store.ByNumber(ctx, n)
}

// RecordByReceptionID retrieves the record with the given direction and
// reception id.
func (s *service) RecordByReceptionID(ctx context.Context, direction Direction, id ident.ReceptionID) (*store.TransmissionRecord, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	return s.store.ByReceptionID(ctx, direction, id)
}

// RecordsByReceptionID retrieves every record carrying the reception id.
func (s *service) RecordsByReceptionID(ctx context.Context, id ident.ReceptionID) ([]store.TransmissionRecord, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	return s.store.AllByReceptionID(ctx, id)
}

// UnattributedRecords lists records not yet attributed to any account.
func (s *service) UnattributedRecords(ctx context.Context) ([]store.TransmissionRecord, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	return s.store.WithoutAccount(ctx)
}
