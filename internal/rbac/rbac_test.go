package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoleCapabilities(t *testing.T) {
	require.True(t, RoleAdmin.Can(CapDistributionFinal))
	require.True(t, RoleHeadOffice.Can(CapPurchaseApprove))
	require.False(t, RoleBranchManager.Can(CapPurchaseApprove))
	require.False(t, RoleBranchManager.Can(CapDistributionFinal))
	require.True(t, RoleCashier.Can(CapSalePost))
	require.False(t, RoleCashier.Can(CapLedgerView))
	require.True(t, RoleAuditor.Can(CapReportView))
	require.False(t, RoleAuditor.Can(CapAlertAck))
}

func TestParseRoleRejectsUnknown(t *testing.T) {
	_, err := ParseRole("SUPERUSER")
	require.Error(t, err)

	role, err := ParseRole("BRANCH_MANAGER")
	require.NoError(t, err)
	require.Equal(t, RoleBranchManager, role)
}

func TestPrincipalBranchScope(t *testing.T) {
	hq := Principal{UserID: 1, Role: RoleHeadOffice, BranchID: 0}
	require.True(t, hq.CanAccessBranch(3))

	branch := Principal{UserID: 2, Role: RoleBranchManager, BranchID: 3}
	require.True(t, branch.CanAccessBranch(3))
	require.False(t, branch.CanAccessBranch(4))
}

func authedRequest(userID, role, branch string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, userID)
	req.Header.Set(HeaderRole, role)
	if branch != "" {
		req.Header.Set(HeaderBranch, branch)
	}
	return req
}

func TestAuthenticatePopulatesPrincipal(t *testing.T) {
	mw := Middleware{}
	var got Principal
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		got = p
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest("7", "CASHIER", "3"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, Principal{UserID: 7, Role: RoleCashier, BranchID: 3}, got)
}

func TestAuthenticateRejectsMissingIdentity(t *testing.T) {
	mw := Middleware{}
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthenticateRejectsUnknownRole(t *testing.T) {
	mw := Middleware{}
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest("7", "SUPERUSER", ""))
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRequireEnforcesCapability(t *testing.T) {
	mw := Middleware{}
	protected := mw.Require(CapLedgerView)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ContextWithPrincipal(req.Context(), Principal{UserID: 7, Role: RoleCashier}))
	protected.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ContextWithPrincipal(req.Context(), Principal{UserID: 7, Role: RoleAuditor}))
	protected.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}
