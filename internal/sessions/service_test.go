package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clubemecanico/courses-backend/pkg/db/dbtest"
	"github.com/clubemecanico/courses-backend/pkg/db/models"
	"github.com/clubemecanico/courses-backend/pkg/enums"
	pkgerrors "github.com/clubemecanico/courses-backend/pkg/errors"
)

func TestDecrementSeatFlipsToFullOnLastSeat(t *testing.T) {
	conn := dbtest.Open(t)
	course := dbtest.Course(t, conn, "Injeção Eletrônica", "100.00")
	session := dbtest.Session(t, conn, course.ID, 2, 1)
	repo := NewRepository(conn)
	ctx := context.Background()

	ok, err := repo.DecrementSeat(ctx, session.ID, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.DecrementSeat(ctx, session.ID, time.Now())
	require.NoError(t, err)
	require.False(t, ok, "no seat left")

	var stored models.ClassSession
	require.NoError(t, conn.First(&stored, session.ID).Error)
	require.Equal(t, 0, stored.AvailableSeats)
	require.Equal(t, enums.ClassSessionStatusFull, stored.Status)
}

func TestDecrementSeatKeepsStatusWhileSeatsRemain(t *testing.T) {
	conn := dbtest.Open(t)
	course := dbtest.Course(t, conn, "Freios ABS", "80.00")
	session := dbtest.Session(t, conn, course.ID, 10, 5)
	repo := NewRepository(conn)

	ok, err := repo.DecrementSeat(context.Background(), session.ID, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	stored, err := repo.Get(context.Background(), session.ID)
	require.NoError(t, err)
	require.Equal(t, 4, stored.AvailableSeats)
	require.Equal(t, enums.ClassSessionStatusOpen, stored.Status)
}

func TestHasAvailableSeat(t *testing.T) {
	conn := dbtest.Open(t)
	course := dbtest.Course(t, conn, "Suspensão", "120.00")
	open := dbtest.Session(t, conn, course.ID, 10, 3)
	empty := dbtest.Session(t, conn, course.ID, 10, 0)
	cancelled := dbtest.Session(t, conn, course.ID, 10, 10)
	require.NoError(t, conn.Model(&models.ClassSession{}).Where("id = ?", cancelled.ID).
		Update("status", enums.ClassSessionStatusCancelled).Error)

	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := svc.HasAvailableSeat(ctx, open.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.HasAvailableSeat(ctx, empty.ID)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.HasAvailableSeat(ctx, cancelled.ID)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = svc.HasAvailableSeat(ctx, 9999)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.HasAvailableSeat(ctx, 0)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAvailabilityReportsSeats(t *testing.T) {
	conn := dbtest.Open(t)
	course := dbtest.Course(t, conn, "Diagnóstico", "150.00")
	session := dbtest.Session(t, conn, course.ID, 12, 7)

	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)

	got, err := svc.Availability(context.Background(), session.ID)
	require.NoError(t, err)
	require.Equal(t, course.ID, got.CourseID)
	require.Equal(t, 12, got.TotalSeats)
	require.Equal(t, 7, got.AvailableSeats)
	require.True(t, got.HasAvailableSeat)
}
