package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordIncoming(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	companyID := uuid.New()
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(pgxmock.AnyArg(), companyID, "+5511999990000", DirectionIn, "oi", "wamid.123", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := NewStore(mock)
	require.NoError(t, s.RecordIncoming(context.Background(), companyID, "+5511999990000", "oi", "wamid.123"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordOutgoingWithoutProviderID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	companyID := uuid.New()
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(pgxmock.AnyArg(), companyID, "+5511999990000", DirectionOut, "resposta", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := NewStore(mock)
	require.NoError(t, s.RecordOutgoing(context.Background(), companyID, "+5511999990000", "resposta", ""))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistory(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	companyID := uuid.New()
	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"id", "company_id", "subject_address", "direction", "body", "provider_message_id", "created_at"}).
		AddRow(uuid.New(), companyID, "+5511999990000", DirectionOut, "resposta", "msg_1", now).
		AddRow(uuid.New(), companyID, "+5511999990000", DirectionIn, "oi", "wamid.123", now.Add(-time.Minute))

	mock.ExpectQuery("SELECT (.+) FROM messages").
		WithArgs(companyID, "+5511999990000", 10).
		WillReturnRows(rows)

	s := NewStore(mock)
	history, err := s.History(context.Background(), companyID, "+5511999990000", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, DirectionOut, history[0].Direction)
	assert.Equal(t, "oi", history[1].Body)
	require.NoError(t, mock.ExpectationsWereMet())
}
