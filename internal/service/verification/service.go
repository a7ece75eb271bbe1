package verification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirinyoku/tixledger/internal/clock"
	"github.com/kirinyoku/tixledger/internal/domain"
	"github.com/kirinyoku/tixledger/internal/lib/logger/sl"
	"github.com/kirinyoku/tixledger/internal/metrics"
	"github.com/kirinyoku/tixledger/internal/outbox"
	redisx "github.com/kirinyoku/tixledger/internal/redis"
	"github.com/kirinyoku/tixledger/internal/repository"
	"github.com/kirinyoku/tixledger/internal/service/access"
	"github.com/kirinyoku/tixledger/internal/ticketqr"
	"github.com/kirinyoku/tixledger/internal/uow"
)

type ChangePublisher interface {
	Publish(ctx context.Context, c redisx.TicketChange) error
}

type Config struct {
	HistoryLimit int
}

type Service struct {
	store     repository.Store
	codec     *ticketqr.Codec
	publisher ChangePublisher
	uow       *uow.UoW
	clock     clock.Clock
	log       *slog.Logger
	metrics   *metrics.Metrics
	cfg       Config
}

func New(
	store repository.Store,
	codec *ticketqr.Codec,
	publisher ChangePublisher,
	clk clock.Clock,
	log *slog.Logger,
	m *metrics.Metrics,
	cfg Config,
) *Service {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}

	return &Service{
		store:     store,
		codec:     codec,
		publisher: publisher,
		uow:       uow.NewUoW(store),
		clock:     clk,
		log:       log,
		metrics:   m,
		cfg:       cfg,
	}
}

// CheckValidity reports the state of a ticket and its event. It changes
// nothing and needs no authorization.
//
// Returns:
//   - error: domain.ErrNotFound if the id was never minted.
func (s *Service) CheckValidity(ctx context.Context, ticketID int64) (domain.ValidityReport, error) {
	const op = "service.verification.CheckValidity"

	report, err := s.report(ctx, ticketID)
	s.metrics.Verification(string(domain.ActionCheck), domain.Kind(err))
	if err != nil {
		return domain.ValidityReport{}, fmt.Errorf("%s: %w", op, err)
	}

	return report, nil
}

// report reads the ticket and its event from one snapshot.
func (s *Service) report(ctx context.Context, ticketID int64) (domain.ValidityReport, error) {
	var (
		t *domain.Ticket
		e *domain.Event
	)

	err := s.store.View(ctx, func(ctx context.Context, tx repository.Repos) error {
		var err error
		if t, err = tx.Tickets().Get(ctx, ticketID); err != nil {
			return mapRepoErr(err)
		}
		if e, err = tx.Events().Get(ctx, t.EventID); err != nil {
			return mapRepoErr(err)
		}
		return nil
	})
	if err != nil {
		return domain.ValidityReport{}, err
	}

	return domain.ValidityReport{
		Exists: true,
		Valid:  t.Status != domain.TicketUsed && !e.Closed,
		Status: t.Status,
		Ticket: *t,
		Event:  *e,
		Owner:  t.Owner,
	}, nil
}

// MarkVerified confirms at the venue that a minted ticket is authentic.
//
// Returns:
//   - error: domain.ErrNotFound if the ticket does not exist.
//   - error: domain.ErrUnauthorized if caller is not an operator for the
//     ticket's event.
//   - error: domain.ErrAlreadyUsed if the ticket was used.
//   - error: domain.ErrInvalidTransition if the ticket is already verified.
func (s *Service) MarkVerified(ctx context.Context, ticketID int64, caller string) error {
	const op = "service.verification.MarkVerified"

	err := s.advance(ctx, ticketID, caller, domain.ActionVerify, domain.TicketMinted, domain.TicketVerified)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// MarkUsed admits the holder of a verified ticket. Entry is two-step: a
// ticket must be verified before it can be used. Re-scanning a used ticket
// fails with domain.ErrAlreadyUsed.
//
// Returns:
//   - error: domain.ErrNotFound if the ticket does not exist.
//   - error: domain.ErrUnauthorized if caller is not an operator for the
//     ticket's event.
//   - error: domain.ErrAlreadyUsed if the ticket was used.
//   - error: domain.ErrInvalidTransition if the ticket was never verified.
func (s *Service) MarkUsed(ctx context.Context, ticketID int64, caller string) error {
	const op = "service.verification.MarkUsed"

	err := s.advance(ctx, ticketID, caller, domain.ActionUse, domain.TicketVerified, domain.TicketUsed)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// advance moves a ticket from one status to the next under a row lock and
// records the attempt in the verification log, whatever the outcome.
func (s *Service) advance(
	ctx context.Context,
	ticketID int64,
	caller string,
	action domain.VerificationAction,
	from, to domain.TicketStatus,
) error {
	var ticket domain.Ticket

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		t, err := tx.Tickets().GetForUpdate(ctx, ticketID)
		if err != nil {
			return mapRepoErr(err)
		}

		e, err := tx.Events().Get(ctx, t.EventID)
		if err != nil {
			return mapRepoErr(err)
		}

		ok, err := access.IsOperator(ctx, tx, caller, e)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrUnauthorized
		}

		switch {
		case t.Status == domain.TicketUsed:
			return domain.ErrAlreadyUsed
		case t.Status != from:
			return fmt.Errorf("%w: ticket is %s, %s requires %s", domain.ErrInvalidTransition, t.Status, action, from)
		}

		now := s.clock.Now()
		if err := tx.Tickets().Transition(ctx, t.ID, from, to, now); err != nil {
			if errors.Is(err, repository.ErrStaleStatus) {
				return domain.ErrInvalidTransition
			}
			return mapRepoErr(err)
		}

		t.Status = to
		switch to {
		case domain.TicketVerified:
			t.VerifiedAt = &now
		case domain.TicketUsed:
			t.UsedAt = &now
		}
		ticket = *t

		msg, err := outbox.TicketMessage(messageType(to), ticket, caller, now)
		if err != nil {
			return err
		}
		if err := tx.Outbox().Append(ctx, msg); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			s.publish(ctx, ticket, to)
		})

		return nil
	})

	s.record(ctx, ticketID, action, caller, err)

	if err != nil {
		return err
	}

	s.log.Info("ticket status changed",
		slog.Int64("ticket_id", ticket.ID),
		slog.Int64("event_id", ticket.EventID),
		slog.String("status", string(to)),
		slog.String("operator", caller),
	)

	return nil
}

// Scan decodes a QR payload presented at the gate and reports the validity
// of the ticket it names.
//
// Returns:
//   - error: domain.ErrInvalidPayload if the payload is forged, malformed or
//     names a different event than the ticket belongs to.
//   - error: domain.ErrNotFound if the ticket does not exist.
func (s *Service) Scan(ctx context.Context, payload, caller string) (domain.ValidityReport, error) {
	const op = "service.verification.Scan"

	var ticketID int64

	report, err := func() (domain.ValidityReport, error) {
		p, err := s.codec.Decode(payload)
		if err != nil {
			return domain.ValidityReport{}, err
		}
		ticketID = p.TicketID

		report, err := s.report(ctx, p.TicketID)
		if err != nil {
			return domain.ValidityReport{}, err
		}

		if report.Ticket.EventID != p.EventID {
			return domain.ValidityReport{}, fmt.Errorf("%w: ticket belongs to event %d", domain.ErrInvalidPayload, report.Ticket.EventID)
		}

		return report, nil
	}()

	if ticketID != 0 {
		s.record(ctx, ticketID, domain.ActionScan, caller, err)
	} else {
		s.metrics.Verification(string(domain.ActionScan), domain.Kind(err))
	}

	if err != nil {
		return domain.ValidityReport{}, fmt.Errorf("%s: %w", op, err)
	}

	return report, nil
}

// History returns the verification log of a ticket, newest first.
func (s *Service) History(ctx context.Context, ticketID int64) ([]domain.VerificationRecord, error) {
	const op = "service.verification.History"

	if _, err := s.store.Tickets().Get(ctx, ticketID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapRepoErr(err))
	}

	records, err := s.store.Audit().History(ctx, ticketID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return records, nil
}

// QRPayload returns the signed gate payload of a ticket. Only the owner may
// fetch it.
//
// Returns:
//   - error: domain.ErrNotFound if the ticket does not exist.
//   - error: domain.ErrUnauthorized if caller does not own the ticket.
func (s *Service) QRPayload(ctx context.Context, ticketID int64, caller string) (string, error) {
	const op = "service.verification.QRPayload"

	t, err := s.store.Tickets().Get(ctx, ticketID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, mapRepoErr(err))
	}

	if caller == "" || t.Owner != caller {
		return "", fmt.Errorf("%s: %w", op, domain.ErrUnauthorized)
	}

	return s.codec.Encode(ticketqr.Payload{TicketID: t.ID, EventID: t.EventID}), nil
}

// QRCode renders the gate payload of a ticket as a JPEG image.
func (s *Service) QRCode(ctx context.Context, ticketID int64, caller string) ([]byte, error) {
	const op = "service.verification.QRCode"

	payload, err := s.QRPayload(ctx, ticketID, caller)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := ticketqr.Render(&buf, payload); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return buf.Bytes(), nil
}

// record appends to the verification log outside the state transaction, so
// rejected attempts are kept too. Failures are logged and swallowed.
func (s *Service) record(ctx context.Context, ticketID int64, action domain.VerificationAction, caller string, opErr error) {
	outcome := domain.Kind(opErr)
	s.metrics.Verification(string(action), outcome)

	err := s.store.Audit().Record(ctx, domain.VerificationRecord{
		TicketID: ticketID,
		Action:   action,
		Caller:   caller,
		Outcome:  outcome,
		At:       s.clock.Now(),
	})
	if err != nil {
		s.log.Warn("failed to record verification attempt",
			slog.Int64("ticket_id", ticketID),
			slog.String("action", string(action)),
			sl.Err(err),
		)
	}
}

func (s *Service) publish(ctx context.Context, t domain.Ticket, status domain.TicketStatus) {
	if s.publisher == nil {
		return
	}

	err := s.publisher.Publish(ctx, redisx.TicketChange{
		Type:     messageType(status),
		EventID:  t.EventID,
		TicketID: t.ID,
		Status:   string(status),
		TsUnix:   s.clock.Now().Unix(),
	})
	if err != nil {
		s.log.Warn("failed to publish ticket change", slog.Int64("ticket_id", t.ID), sl.Err(err))
	}
}

func messageType(status domain.TicketStatus) string {
	if status == domain.TicketUsed {
		return domain.MessageTicketUsed
	}
	return domain.MessageTicketVerified
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	default:
		return err
	}
}
