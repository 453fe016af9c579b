package shared

// Inventory console permissions.
const (
	PermInventoryView       = "inventory.view"
	PermInventoryStockIn    = "inventory.stock_in"
	PermInventoryStockOut   = "inventory.stock_out"
	PermInventoryTransfer   = "inventory.transfer"
	PermInventoryAdjust     = "inventory.adjust"
	PermInventoryApproveAdj = "inventory.approve_adjustment"

	PermIssueCreate  = "inventory.issue"
	PermIssueView    = "inventory.issue_view"
	PermIssueApprove = "inventory.issue_approve"

	PermOrdersView = "inventory.view_orders"
	PermPOCreate   = "inventory.po.create"

	PermProductManage   = "product.manage"
	PermWarehouseManage = "warehouse.manage"
	PermSupplierManage  = "supplier.manage"
	PermCompanyManage   = "company.manage"

	PermAuditView   = "audit.view"
	PermReportsView = "reports.view"

	PermRoleManage = "role.manage"
)

// InventoryScopes lists every permission the console checks.
func InventoryScopes() []string {
	return []string{
		PermInventoryView,
		PermInventoryStockIn,
		PermInventoryStockOut,
		PermInventoryTransfer,
		PermInventoryAdjust,
		PermInventoryApproveAdj,
		PermIssueCreate,
		PermIssueView,
		PermIssueApprove,
		PermOrdersView,
		PermPOCreate,
		PermProductManage,
		PermWarehouseManage,
		PermSupplierManage,
		PermCompanyManage,
		PermAuditView,
		PermReportsView,
		PermRoleManage,
	}
}
