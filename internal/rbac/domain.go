// Package rbac maps the externally-authenticated principal onto a closed role
// set with a static capability matrix. Authentication itself happens upstream;
// this package only enforces what an already-identified caller may do.
package rbac

import (
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Role is the closed set of caller roles. Roles arrive from the identity
// layer as canonical strings; anything outside the set is rejected.
type Role string

const (
	RoleAdmin         Role = "ADMIN"
	RoleHeadOffice    Role = "HEAD_OFFICE"
	RoleBranchManager Role = "BRANCH_MANAGER"
	RoleCashier       Role = "CASHIER"
	RoleAuditor       Role = "AUDITOR"
)

// ParseRole validates a role string against the closed set.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleAdmin, RoleHeadOffice, RoleBranchManager, RoleCashier, RoleAuditor:
		return Role(raw), nil
	}
	return "", shared.Permissionf("rbac: unknown role %q", raw)
}

// Capability is an atomic permission checked per operation family.
type Capability string

const (
	CapLedgerView          Capability = "ledger.view"
	CapStockView           Capability = "stock.view"
	CapStockReserve        Capability = "stock.reserve"
	CapStockTransfer       Capability = "stock.transfer"
	CapPurchaseEdit        Capability = "purchase.edit"
	CapPurchaseApprove     Capability = "purchase.approve"
	CapPurchaseFinalize    Capability = "purchase.finalize"
	CapInvoiceEdit         Capability = "invoice.edit"
	CapInvoicePay          Capability = "invoice.pay"
	CapSalePost            Capability = "sale.post"
	CapDistributionView    Capability = "distribution.view"
	CapDistributionFinal   Capability = "distribution.finalize"
	CapReportView          Capability = "report.view"
	CapAlertView           Capability = "alert.view"
	CapAlertAck            Capability = "alert.ack"
)

// matrix is the single source of truth for role capabilities. No string
// comparisons against role literals happen anywhere else.
var matrix = map[Role]map[Capability]bool{
	RoleAdmin: allCapabilities(),
	RoleHeadOffice: {
		CapLedgerView: true, CapStockView: true, CapStockTransfer: true,
		CapPurchaseEdit: true, CapPurchaseApprove: true, CapPurchaseFinalize: true,
		CapInvoiceEdit: true, CapInvoicePay: true,
		CapDistributionView: true, CapDistributionFinal: true,
		CapReportView: true,
		CapAlertView:  true, CapAlertAck: true,
	},
	RoleBranchManager: {
		CapLedgerView: true, CapStockView: true, CapStockReserve: true, CapStockTransfer: true,
		CapPurchaseEdit: true,
		CapInvoiceEdit: true, CapInvoicePay: true,
		CapSalePost:   true,
		CapReportView: true,
		CapAlertView:  true, CapAlertAck: true,
	},
	RoleCashier: {
		CapStockView: true, CapStockReserve: true,
		CapInvoicePay: true,
		CapSalePost:   true,
	},
	RoleAuditor: {
		CapLedgerView: true, CapStockView: true,
		CapDistributionView: true,
		CapReportView:       true,
		CapAlertView:        true,
	},
}

func allCapabilities() map[Capability]bool {
	caps := []Capability{
		CapLedgerView, CapStockView, CapStockReserve, CapStockTransfer,
		CapPurchaseEdit, CapPurchaseApprove, CapPurchaseFinalize,
		CapInvoiceEdit, CapInvoicePay, CapSalePost,
		CapDistributionView, CapDistributionFinal, CapReportView,
		CapAlertView, CapAlertAck,
	}
	out := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		out[c] = true
	}
	return out
}

// Can reports whether the role holds the capability.
func (r Role) Can(c Capability) bool {
	return matrix[r][c]
}

// Principal describes the already-authenticated caller: who they are, what
// role they hold, and which branch their scope is pinned to (0 = all
// branches, head-office scope).
type Principal struct {
	UserID   int64
	Role     Role
	BranchID int64
}

// CanAccessBranch reports whether the principal's scope covers the branch.
func (p Principal) CanAccessBranch(branchID int64) bool {
	return p.BranchID == 0 || p.BranchID == branchID
}
