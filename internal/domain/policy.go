package domain

// Decision is the outcome of the withdrawal approval policy.
type Decision int

const (
	// DecisionApprove sends the transfer without human review.
	DecisionApprove Decision = iota
	// DecisionQueue parks the withdrawal for manual review.
	DecisionQueue
	// DecisionReject refuses the withdrawal outright.
	DecisionReject
)

func (d Decision) String() string {
	switch d {
	case DecisionApprove:
		return "approve"
	case DecisionQueue:
		return "queue"
	case DecisionReject:
		return "reject"
	default:
		return "unknown"
	}
}

// Reject reasons produced by the policy.
const (
	RejectReasonAccountNotActive = "account not active"
	RejectReasonKYCNotVerified   = "kyc not verified"
)

// PolicyInput carries everything Decide needs. The auto-approval limit is
// injected by the caller so the decision stays pure and testable; the policy
// never fetches configuration itself.
type PolicyInput struct {
	AmountCentavos     int64
	AutoApprovalLimit  int64
	KYCStatus          string
	AccountStatus      string
	RequireVerifiedKYC bool
}

// Decide is the withdrawal approval policy. Deterministic and side-effect
// free. A blocked or suspended account rejects regardless of amount; amounts
// over the limit queue for review regardless of KYC state.
func Decide(in PolicyInput) (Decision, string) {
	if in.AccountStatus != AccountStatusActive {
		return DecisionReject, RejectReasonAccountNotActive
	}
	if in.AmountCentavos > in.AutoApprovalLimit {
		return DecisionQueue, ""
	}
	if in.RequireVerifiedKYC && in.KYCStatus != KYCStatusVerified {
		return DecisionReject, RejectReasonKYCNotVerified
	}
	return DecisionApprove, ""
}
