package domain

import "strings"

// Transaction types.
const (
	TxTypeDeposit    = "DEPOSIT"
	TxTypeWithdrawal = "WITHDRAWAL"
	TxTypeBet        = "BET"
	TxTypeWin        = "WIN"
	TxTypeYield      = "YIELD"
	TxTypeTransfer   = "TRANSFER"
)

// Transaction statuses. Deposits use PENDING plus the four deposit terminals;
// withdrawals use PENDING/PROCESSING/APPROVED plus their own terminals.
const (
	TxStatusPending    = "PENDING"
	TxStatusProcessing = "PROCESSING"
	TxStatusApproved   = "APPROVED"
	TxStatusCompleted  = "COMPLETED"
	TxStatusPaid       = "PAID"
	TxStatusFailed     = "FAILED"
	TxStatusCancelled  = "CANCELLED"
	TxStatusExpired    = "EXPIRED"
	TxStatusRejected   = "REJECTED"
)

// Fund sources a withdrawal may draw from.
const (
	FundSourceGame   = "game"
	FundSourceInvest = "invest"
)

// PIX key types accepted by the gateway.
const (
	PixKeyCPF   = "cpf"
	PixKeyCNPJ  = "cnpj"
	PixKeyEmail = "email"
	PixKeyPhone = "phone"
	PixKeyEVP   = "evp"
)

// KYC statuses, consumed read-only by the approval policy.
const (
	KYCStatusPending   = "PENDING"
	KYCStatusSubmitted = "SUBMITTED"
	KYCStatusVerified  = "VERIFIED"
	KYCStatusRejected  = "REJECTED"
)

// Player account statuses.
const (
	AccountStatusActive    = "active"
	AccountStatusBlocked   = "blocked"
	AccountStatusSuspended = "suspended"
)

var depositTransitions = map[string]map[string]struct{}{
	TxStatusPending: {
		TxStatusCompleted: {},
		TxStatusFailed:    {},
		TxStatusCancelled: {},
		TxStatusExpired:   {},
	},
	TxStatusCompleted: {},
	TxStatusFailed:    {},
	TxStatusCancelled: {},
	TxStatusExpired:   {},
}

var withdrawalTransitions = map[string]map[string]struct{}{
	TxStatusPending: {
		TxStatusProcessing: {},
		TxStatusRejected:   {},
	},
	TxStatusProcessing: {
		TxStatusApproved: {},
		TxStatusPaid:     {},
		TxStatusFailed:   {},
	},
	TxStatusApproved: {
		TxStatusPaid:   {},
		TxStatusFailed: {},
	},
	TxStatusPaid:     {},
	TxStatusRejected: {},
	TxStatusFailed:   {},
}

// NormalizeStatus upper-cases and trims a status value.
func NormalizeStatus(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// CanTransition reports whether the lifecycle for the given transaction type
// permits moving from current to next. Unknown types or states transition
// nowhere.
func CanTransition(txType, current, next string) bool {
	var table map[string]map[string]struct{}
	switch txType {
	case TxTypeDeposit:
		table = depositTransitions
	case TxTypeWithdrawal:
		table = withdrawalTransitions
	default:
		return false
	}
	nextStates, ok := table[NormalizeStatus(current)]
	if !ok {
		return false
	}
	_, ok = nextStates[NormalizeStatus(next)]
	return ok
}

// IsTerminal reports whether a status permits no further transition for the
// given transaction type.
func IsTerminal(txType, status string) bool {
	var table map[string]map[string]struct{}
	switch txType {
	case TxTypeDeposit:
		table = depositTransitions
	case TxTypeWithdrawal:
		table = withdrawalTransitions
	default:
		return false
	}
	nextStates, ok := table[NormalizeStatus(status)]
	return ok && len(nextStates) == 0
}

// ValidPixKeyType reports whether the gateway accepts the key type.
func ValidPixKeyType(t string) bool {
	switch t {
	case PixKeyCPF, PixKeyCNPJ, PixKeyEmail, PixKeyPhone, PixKeyEVP:
		return true
	default:
		return false
	}
}

// ValidFundSource reports whether a withdrawal may draw from the source.
func ValidFundSource(s string) bool {
	return s == FundSourceGame || s == FundSourceInvest
}
