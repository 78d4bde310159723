package payment

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement/internal/domain"
	"github.com/josh-kwaku/settlement/internal/repository"
)

var paymentRowColumns = []string{
	"id", "order_code", "method", "amount", "currency", "status",
	"idempotency_key", "provider_reference", "redirect_url", "return_url", "failure_reason",
	"raw_payload", "created_at", "updated_at", "completed_at",
}

func paymentRow(id uuid.UUID, status domain.PaymentStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(paymentRowColumns).AddRow(
		id.String(), "OD1", "FAKE", "100", "VND", string(status),
		"k1", "ref-1", nil, nil, nil,
		nil, now, now, nil,
	)
}

// The payment update and the outbox insert must share one transaction.
func TestSettle_WritesPaymentAndOutboxInOneTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	notifier := &stubNotifier{}
	svc := NewService(repository.NewPaymentRepository(db), repository.NewOutboxRepository(db), nil, notifier, db, nil, nil)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM payments WHERE id = $1 FOR UPDATE`)).
		WithArgs(id).
		WillReturnRows(paymentRow(id, domain.PaymentStatusProcessing))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE payments SET status = $1`)).
		WithArgs(domain.PaymentStatusSucceeded, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO outbox_messages`)).
		WithArgs(sqlmock.AnyArg(), id, domain.OutboxEventPaymentSucceeded, sqlmock.AnyArg(),
			domain.OutboxStatusPending, 0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := svc.Settle(context.Background(), SettleRequest{PaymentID: id, Outcome: domain.PaymentStatusSucceeded})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Len(t, notifier.calls, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettle_OutboxInsertErrorRollsBackTransition(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	notifier := &stubNotifier{}
	svc := NewService(repository.NewPaymentRepository(db), repository.NewOutboxRepository(db), nil, notifier, db, nil, nil)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs(id).
		WillReturnRows(paymentRow(id, domain.PaymentStatusProcessing))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE payments`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO outbox_messages`)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err = svc.Settle(context.Background(), SettleRequest{PaymentID: id, Outcome: domain.PaymentStatusFailed})
	assert.ErrorContains(t, err, "connection reset")
	assert.Empty(t, notifier.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettle_TerminalRowTouchesNothing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(repository.NewPaymentRepository(db), repository.NewOutboxRepository(db), nil, nil, db, nil, nil)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs(id).
		WillReturnRows(paymentRow(id, domain.PaymentStatusFailed))
	mock.ExpectRollback()

	res, err := svc.Settle(context.Background(), SettleRequest{PaymentID: id, Outcome: domain.PaymentStatusSucceeded})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, domain.PaymentStatusFailed, res.Payment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
