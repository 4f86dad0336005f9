package config

import (
	"time"

	"github.com/andino-erp/andino/internal/coa"
)

// Role is an abstract accounting purpose mapped per tenant to a
// concrete chart-of-accounts entry.
type Role string

const (
	RoleCash               Role = "cash"
	RoleBank               Role = "bank"
	RoleAccountsReceivable Role = "accounts_receivable"
	RoleAccountsPayable    Role = "accounts_payable"
	RoleInventory          Role = "inventory"
	RoleSalesRevenue       Role = "sales_revenue"
	RoleVATGenerated       Role = "vat_generated"
	RoleVATDeductible      Role = "vat_deductible"
	RoleCostOfSales        Role = "cost_of_sales"
	RoleSalaryExpense      Role = "salary_expense"
	RolePayrollLiability   Role = "payroll_liability"
)

// AllRoles lists every role column in the configuration row.
var AllRoles = []Role{
	RoleCash,
	RoleBank,
	RoleAccountsReceivable,
	RoleAccountsPayable,
	RoleInventory,
	RoleSalesRevenue,
	RoleVATGenerated,
	RoleVATDeductible,
	RoleCostOfSales,
	RoleSalaryExpense,
	RolePayrollLiability,
}

// RequiredRoles is the minimum mapping a tenant must complete before
// the posting adapters will run.
var RequiredRoles = []Role{
	RoleCash,
	RoleAccountsReceivable,
	RoleSalesRevenue,
	RoleVATGenerated,
	RoleCostOfSales,
	RoleInventory,
}

// Config is the per-tenant role to account mapping, with resolved
// account metadata attached.
type Config struct {
	TenantID  int64
	Roles     map[Role]int64
	Accounts  map[Role]coa.Account
	UpdatedAt time.Time
}

// AccountFor returns the mapped account id for a role, if set.
func (c Config) AccountFor(role Role) (int64, bool) {
	id, ok := c.Roles[role]
	return id, ok
}

// Patch carries the roles to set in an Upsert. Roles absent from the
// patch are left untouched.
type Patch map[Role]int64

// Validation reports configuration completeness.
type Validation struct {
	IsValid      bool
	MissingRoles []Role
}
