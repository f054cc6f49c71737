package cart

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clubemecanico/courses-backend/internal/sessions"
	"github.com/clubemecanico/courses-backend/pkg/db/dbtest"
	"github.com/clubemecanico/courses-backend/pkg/db/models"
	pkgerrors "github.com/clubemecanico/courses-backend/pkg/errors"
	"github.com/clubemecanico/courses-backend/pkg/logger"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, conn *gorm.DB) (Service, Repository) {
	t.Helper()
	repo := NewRepository(conn)
	sessionRepo := sessions.NewRepository(conn)
	seats, err := sessions.NewService(sessionRepo)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:     repo,
		Sessions: sessionRepo,
		Seats:    seats,
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc, repo
}

func TestAddEntryAndList(t *testing.T) {
	conn := dbtest.Open(t)
	svc, _ := newTestService(t, conn)
	ctx := context.Background()

	injecao := dbtest.Course(t, conn, "Injeção Eletrônica", "50.00")
	freios := dbtest.Course(t, conn, "Freios", "30.00")
	session := dbtest.Session(t, conn, freios.ID, 10, 2)

	_, err := svc.AddEntry(ctx, AddEntryInput{UserID: 1, CourseID: injecao.ID})
	require.NoError(t, err)
	added, err := svc.AddEntry(ctx, AddEntryInput{UserID: 1, CourseID: freios.ID, ClassSessionID: &session.ID})
	require.NoError(t, err)
	require.Equal(t, "Freios", added.CourseName)

	view, err := svc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, view.Entries, 2)
	require.Equal(t, "80.00", view.Subtotal.StringFixed(2))

	other, err := svc.List(ctx, 2)
	require.NoError(t, err)
	require.Empty(t, other.Entries)
}

func TestAddEntryDuplicateIsConflict(t *testing.T) {
	conn := dbtest.Open(t)
	svc, _ := newTestService(t, conn)
	course := dbtest.Course(t, conn, "Suspensão", "70.00")

	_, err := svc.AddEntry(context.Background(), AddEntryInput{UserID: 1, CourseID: course.ID})
	require.NoError(t, err)
	_, err = svc.AddEntry(context.Background(), AddEntryInput{UserID: 1, CourseID: course.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
}

func TestAddEntryRejectsFullSession(t *testing.T) {
	conn := dbtest.Open(t)
	svc, _ := newTestService(t, conn)
	course := dbtest.Course(t, conn, "Diagnóstico", "90.00")
	full := dbtest.Session(t, conn, course.ID, 10, 0)

	_, err := svc.AddEntry(context.Background(), AddEntryInput{UserID: 1, CourseID: course.ID, ClassSessionID: &full.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
}

func TestAddEntryRejectsForeignSession(t *testing.T) {
	conn := dbtest.Open(t)
	svc, _ := newTestService(t, conn)
	course := dbtest.Course(t, conn, "Elétrica", "60.00")
	other := dbtest.Course(t, conn, "Motor", "60.00")
	session := dbtest.Session(t, conn, other.ID, 10, 10)

	_, err := svc.AddEntry(context.Background(), AddEntryInput{UserID: 1, CourseID: course.ID, ClassSessionID: &session.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestAddEntryRejectsInactiveCourse(t *testing.T) {
	conn := dbtest.Open(t)
	svc, _ := newTestService(t, conn)
	course := dbtest.Course(t, conn, "Antigo", "60.00")
	require.NoError(t, conn.Model(&models.Course{}).Where("id = ?", course.ID).Update("active", false).Error)

	_, err := svc.AddEntry(context.Background(), AddEntryInput{UserID: 1, CourseID: course.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	_, err = svc.AddEntry(context.Background(), AddEntryInput{UserID: 1, CourseID: 4040})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestRemoveEntryScopedToOwner(t *testing.T) {
	conn := dbtest.Open(t)
	svc, _ := newTestService(t, conn)
	course := dbtest.Course(t, conn, "Câmbio", "40.00")
	entry := dbtest.CartEntry(t, conn, 1, course.ID, nil)

	err := svc.RemoveEntry(context.Background(), 2, entry.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	require.NoError(t, svc.RemoveEntry(context.Background(), 1, entry.ID))
	view, err := svc.List(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, view.Entries)
}

func TestDeleteEntriesKeepsLaterAdds(t *testing.T) {
	conn := dbtest.Open(t)
	_, repo := newTestService(t, conn)
	a := dbtest.Course(t, conn, "A", "10.00")
	b := dbtest.Course(t, conn, "B", "20.00")
	first := dbtest.CartEntry(t, conn, 1, a.ID, nil)
	dbtest.CartEntry(t, conn, 1, b.ID, nil)

	deleted, err := repo.DeleteEntries(context.Background(), 1, []int64{first.ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	lines, err := repo.ListWithCourses(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, b.ID, lines[0].CourseID)
}
