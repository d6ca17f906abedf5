package model

import (
	"testing"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"

	"github.com/playletworks/drama-api/common"
)

func seedInvitation(t *testing.T, email string) *Invitation {
	t.Helper()
	inv := &Invitation{
		Id:           "inv-test-1",
		ProductionId: "prod-test-1",
		InviterId:    1,
		InviteeEmail: email,
		Role:         RoleEditor,
	}
	require.NoError(t, CreateInvitation(inv))
	return inv
}

func TestCreateInvitationLowercasesEmail(t *testing.T) {
	setupTestDatabase(t)
	inv := seedInvitation(t, "Alice@Example.COM")
	require.Equal(t, "alice@example.com", inv.InviteeEmail)
	require.Equal(t, InvitationStatusPending, inv.Status)
}

func TestCreateInvitationSinglePendingRule(t *testing.T) {
	setupTestDatabase(t)
	seedInvitation(t, "alice@example.com")

	second := &Invitation{
		Id:           "inv-test-2",
		ProductionId: "prod-test-1",
		InviterId:    1,
		InviteeEmail: "ALICE@example.com",
		Role:         RoleViewer,
	}
	err := CreateInvitation(second)
	require.True(t, errors.Is(err, common.ErrConflict))

	// A pending invitation on another production is fine.
	second.Id = "inv-test-3"
	second.ProductionId = "prod-test-2"
	require.NoError(t, CreateInvitation(second))
}

func TestCreateInvitationRejectsUnknownRole(t *testing.T) {
	setupTestDatabase(t)
	err := CreateInvitation(&Invitation{
		Id: "inv-bad", ProductionId: "prod-test-1", InviteeEmail: "a@b.c", Role: "owner",
	})
	require.True(t, errors.Is(err, common.ErrInvalidInput))
}

func TestAcceptInvitationCaseInsensitiveEmail(t *testing.T) {
	setupTestDatabase(t)
	seedInvitation(t, "Alice@Example.com")

	grant, err := AcceptInvitation("inv-test-1", 7, "ALICE@example.COM")
	require.NoError(t, err)
	require.Equal(t, "prod-test-1", grant.ProductionId)
	require.Equal(t, 7, grant.TenantId)
	require.Equal(t, RoleEditor, grant.Role)

	inv, err := GetInvitationById("inv-test-1")
	require.NoError(t, err)
	require.Equal(t, InvitationStatusAccepted, inv.Status)

	stored, err := GetGrant("prod-test-1", 7)
	require.NoError(t, err)
	require.Equal(t, RoleEditor, stored.Role)
}

func TestAcceptInvitationEmailMismatch(t *testing.T) {
	setupTestDatabase(t)
	seedInvitation(t, "alice@example.com")

	_, err := AcceptInvitation("inv-test-1", 7, "mallory@example.com")
	require.True(t, errors.Is(err, common.ErrForbidden))

	// No grant may exist after the rejected acceptance.
	_, err = GetGrant("prod-test-1", 7)
	require.True(t, errors.Is(err, common.ErrNotFound))
	inv, err := GetInvitationById("inv-test-1")
	require.NoError(t, err)
	require.Equal(t, InvitationStatusPending, inv.Status)
}

func TestAcceptInvitationTwice(t *testing.T) {
	setupTestDatabase(t)
	seedInvitation(t, "alice@example.com")

	_, err := AcceptInvitation("inv-test-1", 7, "alice@example.com")
	require.NoError(t, err)
	_, err = AcceptInvitation("inv-test-1", 7, "alice@example.com")
	require.True(t, errors.Is(err, common.ErrInvalidInput))
}

func TestRejectInvitation(t *testing.T) {
	setupTestDatabase(t)
	seedInvitation(t, "alice@example.com")

	require.NoError(t, RejectInvitation("inv-test-1", "Alice@Example.com"))
	inv, err := GetInvitationById("inv-test-1")
	require.NoError(t, err)
	require.Equal(t, InvitationStatusRejected, inv.Status)

	err = RejectInvitation("inv-test-1", "alice@example.com")
	require.True(t, errors.Is(err, common.ErrInvalidInput))
}

func TestGrantRoleLifecycle(t *testing.T) {
	setupTestDatabase(t)
	require.NoError(t, DB.Create(&CollaboratorGrant{ProductionId: "prod-test-1", TenantId: 7, Role: RoleViewer}).Error)

	require.NoError(t, UpdateGrantRole("prod-test-1", 7, RoleAdmin))
	grant, err := GetGrant("prod-test-1", 7)
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, grant.Role)

	err = UpdateGrantRole("prod-test-1", 7, "superuser")
	require.True(t, errors.Is(err, common.ErrInvalidInput))

	require.NoError(t, RemoveGrant("prod-test-1", 7))
	err = RemoveGrant("prod-test-1", 7)
	require.True(t, errors.Is(err, common.ErrNotFound))
}
