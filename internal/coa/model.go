package coa

import "time"

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
	AccountTypeCost      AccountType = "COST"
)

// NormalSide indicates which side increases the account balance.
type NormalSide string

const (
	NormalSideDebit  NormalSide = "DEBIT"
	NormalSideCredit NormalSide = "CREDIT"
)

// Account models a chart of accounts node. The chart is owned by an
// external module; the ledger engine only reads it.
type Account struct {
	ID                  int64
	TenantID            int64
	Code                string
	Name                string
	Type                AccountType
	Normal              NormalSide
	ParentID            *int64
	RequiresThirdParty  bool
	RequiresCostCenter  bool
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
