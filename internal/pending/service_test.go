package pending

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labtrack/internal/model"
	"labtrack/internal/store"
)

func newYorkTZ(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func newTestService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return NewService(mem, newYorkTZ(t)), mem
}

// seedPending creates a record signed in at the given local time with a
// 24 hour deadline and pins the service clock one hour after sign-in.
func seedPending(t *testing.T, svc *Service, local time.Time) model.PendingSignout {
	t.Helper()
	svc.now = func() time.Time { return local.Add(time.Hour) }
	rec, err := svc.Create(context.Background(), "", "12345678", "Alex Rivera", "arivera@example.edu",
		local, local.Add(24*time.Hour))
	require.NoError(t, err)
	return rec
}

func TestCreateAssignsIDAndToken(t *testing.T) {
	svc, _ := newTestService(t)
	loc := newYorkTZ(t)
	signIn := time.Date(2024, 4, 2, 9, 0, 0, 0, loc)

	rec, err := svc.Create(context.Background(), "", "11112222", "Sam Okafor", "sokafor@example.edu",
		signIn, signIn.Add(24*time.Hour))
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Len(t, rec.Token, 32)
	assert.Equal(t, model.StatusPending, rec.Status)
	assert.Equal(t, signIn.UTC(), rec.SignInAt)
}

func TestCreateIsIdempotentByID(t *testing.T) {
	svc, _ := newTestService(t)
	loc := newYorkTZ(t)
	signIn := time.Date(2024, 4, 2, 9, 0, 0, 0, loc)

	first, err := svc.Create(context.Background(), "fixed-id", "11112222", "Sam Okafor", "sokafor@example.edu",
		signIn, signIn.Add(24*time.Hour))
	require.NoError(t, err)

	second, err := svc.Create(context.Background(), "fixed-id", "11112222", "Sam Okafor", "sokafor@example.edu",
		signIn, signIn.Add(24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, first, second)

	recs, _, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestLookupByTokenReturnsAnyStatus(t *testing.T) {
	svc, _ := newTestService(t)
	loc := newYorkTZ(t)
	rec := seedPending(t, svc, time.Date(2024, 4, 2, 9, 0, 0, 0, loc))

	got, err := svc.LookupByToken(context.Background(), rec.Token)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	_, err = svc.ResolveByStudent(context.Background(), rec.Token, "17:00")
	require.NoError(t, err)

	got, err = svc.LookupByToken(context.Background(), rec.Token)
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, got.Status)

	_, err = svc.LookupByToken(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveByStudentHappyPath(t *testing.T) {
	svc, _ := newTestService(t)
	loc := newYorkTZ(t)
	rec := seedPending(t, svc, time.Date(2024, 4, 2, 9, 0, 0, 0, loc))

	resolved, err := svc.ResolveByStudent(context.Background(), rec.Token, "17:30")
	require.NoError(t, err)

	assert.Equal(t, model.StatusResolved, resolved.Status)
	assert.Equal(t, model.ResolvedByStudent, resolved.ResolvedBy)
	require.NotNil(t, resolved.SubmittedSignOutAt)
	assert.Equal(t, time.Date(2024, 4, 2, 17, 30, 0, 0, loc).UTC(), *resolved.SubmittedSignOutAt)
	assert.InDelta(t, 8.5, resolved.HoursWorked(), 1e-9)
	assert.False(t, resolved.PresentOnly)
}

func TestResolveByStudentSecondAttemptIsRejected(t *testing.T) {
	svc, _ := newTestService(t)
	loc := newYorkTZ(t)
	rec := seedPending(t, svc, time.Date(2024, 4, 2, 9, 0, 0, 0, loc))

	first, err := svc.ResolveByStudent(context.Background(), rec.Token, "17:00")
	require.NoError(t, err)

	_, err = svc.ResolveByStudent(context.Background(), rec.Token, "18:00")
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	// the stored sign-out must not have moved
	got, err := svc.LookupByToken(context.Background(), rec.Token)
	require.NoError(t, err)
	assert.Equal(t, *first.SubmittedSignOutAt, *got.SubmittedSignOutAt)
}

func TestResolveByStudentDeadlineBoundary(t *testing.T) {
	svc, _ := newTestService(t)
	loc := newYorkTZ(t)
	signIn := time.Date(2024, 4, 2, 9, 0, 0, 0, loc)
	rec := seedPending(t, svc, signIn)

	// exactly at the deadline still succeeds
	svc.now = func() time.Time { return rec.Deadline }
	_, err := svc.ResolveByStudent(context.Background(), rec.Token, "17:00")
	require.NoError(t, err)

	rec2, err := svc.Create(context.Background(), "", "87654321", "Dana Liu", "dliu@example.edu",
		signIn, signIn.Add(24*time.Hour))
	require.NoError(t, err)

	// one millisecond past is refused
	svc.now = func() time.Time { return rec2.Deadline.Add(time.Millisecond) }
	_, err = svc.ResolveByStudent(context.Background(), rec2.Token, "17:00")
	assert.ErrorIs(t, err, ErrDeadlineExpired)
}

func TestResolveByStudentInvalidClockTimes(t *testing.T) {
	svc, _ := newTestService(t)
	loc := newYorkTZ(t)

	cases := []struct {
		name  string
		clock string
	}{
		{"empty", ""},
		{"garbage", "not-a-time"},
		{"before sign-in", "08:00"},
		{"equal to sign-in", "09:00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := seedPending(t, svc, time.Date(2024, 4, 2, 9, 0, 0, 0, loc))
			_, err := svc.ResolveByStudent(context.Background(), rec.Token, tc.clock)
			assert.ErrorIs(t, err, ErrInvalidTime)
		})
	}
}

// A sign-in at 23:59 with a submitted "00:00" reconstructs onto the sign-in's
// own calendar date, which lands before the sign-in. The engine must reject
// it as an invalid time rather than roll it into the next day.
func TestResolveByStudentDayBoundary(t *testing.T) {
	svc, _ := newTestService(t)
	loc := newYorkTZ(t)
	rec := seedPending(t, svc, time.Date(2024, 4, 2, 23, 59, 0, 0, loc))

	_, err := svc.ResolveByStudent(context.Background(), rec.Token, "00:00")
	assert.ErrorIs(t, err, ErrInvalidTime)

	_, err = svc.ResolveByStudent(context.Background(), rec.Token, "00:10")
	assert.ErrorIs(t, err, ErrInvalidTime)
}

func TestResolveByStudentAtCrossDay(t *testing.T) {
	svc, _ := newTestService(t)
	loc := newYorkTZ(t)
	signIn := time.Date(2024, 4, 2, 22, 0, 0, 0, loc)
	rec := seedPending(t, svc, signIn)

	// an overnight instant is after sign-in but on the next calendar day
	_, err := svc.ResolveByStudentAt(context.Background(), rec.Token, time.Date(2024, 4, 3, 1, 0, 0, 0, loc))
	assert.ErrorIs(t, err, ErrCrossDay)

	// same evening is fine
	resolved, err := svc.ResolveByStudentAt(context.Background(), rec.Token, time.Date(2024, 4, 2, 23, 30, 0, 0, loc))
	require.NoError(t, err)
	assert.InDelta(t, 1.5, resolved.HoursWorked(), 1e-9)
}

// 2024-03-10 is the US spring-forward date. A 10:00 local sign-in with a
// submitted "18:30" must land on the post-transition UTC offset (EDT, -4)
// and credit 8.5 hours, not pick up the pre-transition offset.
func TestResolveByStudentDSTTransitionDate(t *testing.T) {
	svc, _ := newTestService(t)
	loc := newYorkTZ(t)
	rec := seedPending(t, svc, time.Date(2024, 3, 10, 10, 0, 0, 0, loc))

	resolved, err := svc.ResolveByStudent(context.Background(), rec.Token, "18:30")
	require.NoError(t, err)

	require.NotNil(t, resolved.SubmittedSignOutAt)
	want := time.Date(2024, 3, 10, 18, 30, 0, 0, loc)
	assert.Equal(t, want.UTC(), *resolved.SubmittedSignOutAt)
	_, offset := want.Zone()
	assert.Equal(t, -4*3600, offset)
	assert.InDelta(t, 8.5, resolved.HoursWorked(), 1e-9)
}

func TestResolveByAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	loc := newYorkTZ(t)
	signIn := time.Date(2024, 4, 2, 9, 0, 0, 0, loc)
	rec := seedPending(t, svc, signIn)

	// admin may resolve long past the deadline
	svc.now = func() time.Time { return rec.Deadline.Add(72 * time.Hour) }
	signOut := time.Date(2024, 4, 2, 16, 0, 0, 0, loc)
	resolved, err := svc.ResolveByAdmin(context.Background(), rec.ID, AdminResolution{SignOutAt: &signOut})
	require.NoError(t, err)
	assert.Equal(t, model.ResolvedByAdmin, resolved.ResolvedBy)
	assert.InDelta(t, 7.0, resolved.HoursWorked(), 1e-9)

	_, err = svc.ResolveByAdmin(context.Background(), rec.ID, AdminResolution{SignOutAt: &signOut})
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	_, err = svc.ResolveByAdmin(context.Background(), "missing-id", AdminResolution{SignOutAt: &signOut})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveByAdminCrossDayAllowed(t *testing.T) {
	svc, _ := newTestService(t)
	loc := newYorkTZ(t)
	rec := seedPending(t, svc, time.Date(2024, 4, 2, 22, 0, 0, 0, loc))

	// the admin is trusted to correct overnight anomalies
	signOut := time.Date(2024, 4, 3, 2, 0, 0, 0, loc)
	resolved, err := svc.ResolveByAdmin(context.Background(), rec.ID, AdminResolution{SignOutAt: &signOut})
	require.NoError(t, err)
	assert.InDelta(t, 4.0, resolved.HoursWorked(), 1e-9)
}

func TestResolveByAdminPresentOnly(t *testing.T) {
	svc, _ := newTestService(t)
	loc := newYorkTZ(t)
	rec := seedPending(t, svc, time.Date(2024, 4, 2, 9, 0, 0, 0, loc))

	resolved, err := svc.ResolveByAdmin(context.Background(), rec.ID, AdminResolution{PresentOnly: true})
	require.NoError(t, err)
	assert.True(t, resolved.PresentOnly)
	assert.Zero(t, resolved.HoursWorked())
	require.NotNil(t, resolved.SubmittedSignOutAt)
	assert.Equal(t, resolved.SignInAt, *resolved.SubmittedSignOutAt)
}

func TestResolveByAdminRequiresInput(t *testing.T) {
	svc, _ := newTestService(t)
	loc := newYorkTZ(t)
	rec := seedPending(t, svc, time.Date(2024, 4, 2, 9, 0, 0, 0, loc))

	_, err := svc.ResolveByAdmin(context.Background(), rec.ID, AdminResolution{})
	assert.ErrorIs(t, err, ErrInvalidTime)

	before := time.Date(2024, 4, 2, 8, 0, 0, 0, loc)
	_, err = svc.ResolveByAdmin(context.Background(), rec.ID, AdminResolution{SignOutAt: &before})
	assert.ErrorIs(t, err, ErrInvalidTime)
}

func TestReconcileUpdatesProvisionalEvent(t *testing.T) {
	svc, mem := newTestService(t)
	loc := newYorkTZ(t)
	rec := seedPending(t, svc, time.Date(2024, 4, 2, 9, 0, 0, 0, loc))

	events := []model.AttendanceEvent{
		{ID: "e1", UFID: rec.UFID, Action: model.ActionSignIn, Timestamp: rec.SignInAt},
		{ID: "e2", UFID: rec.UFID, Action: model.ActionSignOut, Timestamp: rec.SignInAt,
			PendingTimestamp: true, PendingRecordID: rec.ID},
	}
	require.NoError(t, mem.Set(context.Background(), store.KeyAttendance, events))

	resolved, err := svc.ResolveByStudent(context.Background(), rec.Token, "17:00")
	require.NoError(t, err)

	var got []model.AttendanceEvent
	require.NoError(t, mem.Get(context.Background(), store.KeyAttendance, &got))
	require.Len(t, got, 2)
	assert.Equal(t, *resolved.SubmittedSignOutAt, got[1].Timestamp)
	assert.False(t, got[1].PendingTimestamp)
	require.NotNil(t, got[1].ResolvedAt)
}

func TestReconcileFallsBackToUFIDMatch(t *testing.T) {
	svc, mem := newTestService(t)
	loc := newYorkTZ(t)
	rec := seedPending(t, svc, time.Date(2024, 4, 2, 9, 0, 0, 0, loc))

	// no back-reference on the event; only the (ufid, provisional) match
	events := []model.AttendanceEvent{
		{ID: "e2", UFID: rec.UFID, Action: model.ActionSignOut, Timestamp: rec.SignInAt, PendingTimestamp: true},
	}
	require.NoError(t, mem.Set(context.Background(), store.KeyAttendance, events))

	resolved, err := svc.ResolveByStudent(context.Background(), rec.Token, "17:00")
	require.NoError(t, err)

	var got []model.AttendanceEvent
	require.NoError(t, mem.Get(context.Background(), store.KeyAttendance, &got))
	assert.Equal(t, *resolved.SubmittedSignOutAt, got[0].Timestamp)
	assert.False(t, got[0].PendingTimestamp)
}

func TestReconcileMissingEventIsNoOp(t *testing.T) {
	svc, _ := newTestService(t)
	loc := newYorkTZ(t)
	rec := seedPending(t, svc, time.Date(2024, 4, 2, 9, 0, 0, 0, loc))

	// attendance collection never written; resolution still succeeds
	resolved, err := svc.ResolveByStudent(context.Background(), rec.Token, "17:00")
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, resolved.Status)
}

func TestListCountsByDisplayStatus(t *testing.T) {
	svc, _ := newTestService(t)
	loc := newYorkTZ(t)
	signIn := time.Date(2024, 4, 2, 9, 0, 0, 0, loc)

	a := seedPending(t, svc, signIn)
	_, err := svc.ResolveByStudent(context.Background(), a.Token, "17:00")
	require.NoError(t, err)

	seedPending(t, svc, signIn)

	c, err := svc.Create(context.Background(), "", "99990000", "Kim Patel", "kpatel@example.edu",
		signIn, signIn.Add(time.Hour))
	require.NoError(t, err)

	// clock past c's deadline but inside b's
	svc.now = func() time.Time { return c.Deadline.Add(time.Minute) }

	recs, counts, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.Equal(t, 1, counts[model.StatusResolved])
	assert.Equal(t, 1, counts[model.StatusPending])
	assert.Equal(t, 1, counts[model.StatusExpired])
}

func TestCleanupKeepsPendingForever(t *testing.T) {
	svc, _ := newTestService(t)
	loc := newYorkTZ(t)
	signIn := time.Date(2024, 4, 2, 9, 0, 0, 0, loc)

	stale := seedPending(t, svc, signIn)
	resolvedRec := seedPending(t, svc, signIn)
	_, err := svc.ResolveByStudent(context.Background(), resolvedRec.Token, "17:00")
	require.NoError(t, err)

	// jump far into the future: the resolved record ages out, the pending
	// one survives no matter how old it is
	svc.now = func() time.Time { return signIn.Add(90 * 24 * time.Hour) }
	removed, err := svc.Cleanup(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	recs, _, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, stale.ID, recs[0].ID)

	_, err = svc.Cleanup(context.Background(), 0)
	assert.Error(t, err)
}

func TestExpiredIsNeverPersisted(t *testing.T) {
	svc, _ := newTestService(t)
	loc := newYorkTZ(t)
	rec := seedPending(t, svc, time.Date(2024, 4, 2, 9, 0, 0, 0, loc))

	svc.now = func() time.Time { return rec.Deadline.Add(time.Hour) }
	got, err := svc.LookupByToken(context.Background(), rec.Token)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, model.StatusExpired, got.DisplayStatus(svc.now()))

	// an expired-by-deadline record is still admin-resolvable
	signOut := rec.SignInAt.Add(6 * time.Hour)
	_, err = svc.ResolveByAdmin(context.Background(), rec.ID, AdminResolution{SignOutAt: &signOut})
	require.NoError(t, err)
}
