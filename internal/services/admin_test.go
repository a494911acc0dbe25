package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/repos/testutil"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/apierr"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/study/steps"
)

func newAdminService(t *testing.T, env *studyEnv) AdminService {
	return NewAdminService(env.db, testutil.Logger(t), env.repos.AdminUser, env.repos.Participant, env.tokens)
}

func TestAdminCreateAndLogin(t *testing.T) {
	env := newStudyEnv(t)
	svc := newAdminService(t, env)
	ctx := context.Background()

	admin, err := svc.CreateAdmin(ctx, " Lead@Example.org ", "correct horse battery")
	require.NoError(t, err)
	require.Equal(t, "lead@example.org", admin.Email)
	require.NotEqual(t, "correct horse battery", admin.PasswordHash)

	_, err = svc.CreateAdmin(ctx, "lead@example.org", "another long password")
	require.True(t, apierr.HasStatus(err, http.StatusConflict), "got %v", err)
	_, err = svc.CreateAdmin(ctx, "short@example.org", "short")
	require.True(t, apierr.HasStatus(err, http.StatusBadRequest), "got %v", err)

	res, err := svc.Login(ctx, "LEAD@example.org", "correct horse battery")
	require.NoError(t, err)
	require.NotNil(t, res.Admin.LastLoginAt)
	claims, err := env.tokens.VerifyAdmin(res.Token)
	require.NoError(t, err)
	require.Equal(t, "lead@example.org", claims.Email)

	_, err = svc.Login(ctx, "lead@example.org", "wrong password!")
	require.True(t, apierr.HasStatus(err, http.StatusUnauthorized), "got %v", err)
	_, err = svc.Login(ctx, "nobody@example.org", "whatever-password")
	require.True(t, apierr.HasStatus(err, http.StatusUnauthorized), "got %v", err)
}

func TestProvisionParticipants(t *testing.T) {
	env := newStudyEnv(t)
	svc := newAdminService(t, env)
	ctx := context.Background()

	generated, err := svc.ProvisionParticipants(ctx, ProvisionInput{Count: 3, Variants: []string{"A", "B"}, SidePanelEnabled: true})
	require.NoError(t, err)
	require.Len(t, generated, 3)
	require.Equal(t, []string{"A", "B", "A"}, []string{generated[0].AssignedVariant, generated[1].AssignedVariant, generated[2].AssignedVariant})
	for _, p := range generated {
		require.Len(t, p.AccessCode, accessCodeLen)
		require.Equal(t, steps.StatusCreated, p.Status)
		require.Equal(t, steps.Welcome, p.CurrentStep)
		require.True(t, p.SidePanelEnabled)
	}

	named, err := svc.ProvisionParticipants(ctx, ProvisionInput{AccessCodes: []string{"P001", " P001 ", "P002"}})
	require.NoError(t, err)
	require.Len(t, named, 2)

	_, err = svc.ProvisionParticipants(ctx, ProvisionInput{AccessCodes: []string{"P002"}})
	require.True(t, apierr.HasStatus(err, http.StatusConflict), "got %v", err)
	_, err = svc.ProvisionParticipants(ctx, ProvisionInput{})
	require.True(t, apierr.HasStatus(err, http.StatusBadRequest), "got %v", err)

	all, err := svc.ListParticipants(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
}

func TestWithdrawAndInvalidate(t *testing.T) {
	env := newStudyEnv(t)
	svc := newAdminService(t, env)
	ctx := context.Background()

	active := testutil.SeedParticipant(t, env.db, "P001", steps.Task2Chat)
	p, err := svc.Withdraw(ctx, active.ID)
	require.NoError(t, err)
	require.Equal(t, steps.StatusWithdrawn, p.Status)
	reloaded := env.reload(t, active)
	require.Equal(t, steps.StatusWithdrawn, reloaded.Status)
	require.Equal(t, steps.Task2Chat, reloaded.CurrentStep)

	_, err = svc.Withdraw(ctx, active.ID)
	require.NoError(t, err)
	_, err = svc.Invalidate(ctx, active.ID)
	require.True(t, apierr.HasStatus(err, http.StatusConflict), "got %v", err)

	done := testutil.SeedParticipant(t, env.db, "P002", steps.Done)
	_, err = svc.Withdraw(ctx, done.ID)
	require.True(t, apierr.HasStatus(err, http.StatusConflict), "got %v", err)
	p, err = svc.Invalidate(ctx, done.ID)
	require.NoError(t, err)
	require.Equal(t, steps.StatusInvalidated, p.Status)
	require.Equal(t, "/study/P002/ended", env.reload(t, done).Route())
}

func TestAdminResetPassword(t *testing.T) {
	env := newStudyEnv(t)
	svc := newAdminService(t, env)
	ctx := context.Background()

	_, err := svc.CreateAdmin(ctx, "lead@example.org", "correct horse battery")
	require.NoError(t, err)

	require.True(t, apierr.HasStatus(svc.ResetPassword(ctx, "lead@example.org", "short"), http.StatusBadRequest))
	require.True(t, apierr.HasStatus(svc.ResetPassword(ctx, "nobody@example.org", "a brand new password"), http.StatusNotFound))
	require.NoError(t, svc.ResetPassword(ctx, "Lead@example.org", "a brand new password"))

	_, err = svc.Login(ctx, "lead@example.org", "correct horse battery")
	require.True(t, apierr.HasStatus(err, http.StatusUnauthorized), "got %v", err)
	_, err = svc.Login(ctx, "lead@example.org", "a brand new password")
	require.NoError(t, err)
}
