package coa

import (
	"errors"
	"time"
)

// AccountType classifies a ledger account and fixes its normal balance side.
type AccountType string

const (
	AccountTypeCash       AccountType = "CASH"
	AccountTypeBank       AccountType = "BANK"
	AccountTypeReceivable AccountType = "RECEIVABLE"
	AccountTypePayable    AccountType = "PAYABLE"
	AccountTypeInventory  AccountType = "INVENTORY"
	AccountTypeRevenue    AccountType = "REVENUE"
	AccountTypeCOGS       AccountType = "COGS"
	AccountTypeExpense    AccountType = "EXPENSE"
	AccountTypeEquity     AccountType = "EQUITY"
)

// BalanceSide is the side on which an account normally carries its balance.
type BalanceSide string

const (
	BalanceSideDebit  BalanceSide = "DEBIT"
	BalanceSideCredit BalanceSide = "CREDIT"
)

// NormalBalance returns the normal balance side for the account type.
func (t AccountType) NormalBalance() BalanceSide {
	switch t {
	case AccountTypeCash, AccountTypeBank, AccountTypeReceivable, AccountTypeInventory, AccountTypeCOGS, AccountTypeExpense:
		return BalanceSideDebit
	default:
		return BalanceSideCredit
	}
}

// Valid reports whether the account type is a known classification.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeCash, AccountTypeBank, AccountTypeReceivable, AccountTypePayable,
		AccountTypeInventory, AccountTypeRevenue, AccountTypeCOGS, AccountTypeExpense, AccountTypeEquity:
		return true
	}
	return false
}

// Account is one node of the chart of accounts. Accounts are configuration
// data: transactional code only ever reads them or toggles IsActive.
type Account struct {
	ID              int64
	Code            string
	Name            string
	Family          string
	Head            string
	Subhead         string
	Type            AccountType
	IsActive        bool
	IsSystemAccount bool
	CreatedBy       int64
	CreatedAt       time.Time
	UpdatedBy       *int64
	UpdatedAt       time.Time
}

// AccountMapping links a module-scoped posting key (e.g. "sale.revenue") to a
// ledger account.
type AccountMapping struct {
	Module    string
	Key       string
	AccountID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("coa: account not found")
	// ErrSystemAccount indicates a mutation attempt on a system account.
	ErrSystemAccount = errors.New("coa: system account cannot be modified")
	// ErrMappingNotFound indicates a posting key without a configured account.
	ErrMappingNotFound = errors.New("coa: account mapping not found")
)
