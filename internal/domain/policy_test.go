package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	base := PolicyInput{
		AmountCentavos:     10_000,
		AutoApprovalLimit:  50_000,
		KYCStatus:          KYCStatusVerified,
		AccountStatus:      AccountStatusActive,
		RequireVerifiedKYC: true,
	}

	tests := []struct {
		name       string
		mutate     func(*PolicyInput)
		want       Decision
		wantReason string
	}{
		{
			name:   "verified active under limit approves",
			mutate: func(in *PolicyInput) {},
			want:   DecisionApprove,
		},
		{
			name:   "amount at limit approves",
			mutate: func(in *PolicyInput) { in.AmountCentavos = in.AutoApprovalLimit },
			want:   DecisionApprove,
		},
		{
			name:   "amount over limit queues",
			mutate: func(in *PolicyInput) { in.AmountCentavos = in.AutoApprovalLimit + 1 },
			want:   DecisionQueue,
		},
		{
			name:       "blocked account rejects before anything else",
			mutate:     func(in *PolicyInput) { in.AccountStatus = AccountStatusBlocked; in.AmountCentavos = 1_000_000 },
			want:       DecisionReject,
			wantReason: RejectReasonAccountNotActive,
		},
		{
			name:       "suspended account rejects",
			mutate:     func(in *PolicyInput) { in.AccountStatus = AccountStatusSuspended },
			want:       DecisionReject,
			wantReason: RejectReasonAccountNotActive,
		},
		{
			name:       "unverified kyc rejects under limit",
			mutate:     func(in *PolicyInput) { in.KYCStatus = KYCStatusPending },
			want:       DecisionReject,
			wantReason: RejectReasonKYCNotVerified,
		},
		{
			// The limit check wins over KYC; review catches identity issues.
			name:   "unverified kyc over limit still queues",
			mutate: func(in *PolicyInput) { in.KYCStatus = KYCStatusPending; in.AmountCentavos = 60_000 },
			want:   DecisionQueue,
		},
		{
			name:   "kyc requirement off approves unverified",
			mutate: func(in *PolicyInput) { in.KYCStatus = KYCStatusSubmitted; in.RequireVerifiedKYC = false },
			want:   DecisionApprove,
		},
		{
			name:   "zero limit queues everything",
			mutate: func(in *PolicyInput) { in.AutoApprovalLimit = 0 },
			want:   DecisionQueue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			got, reason := Decide(in)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.wantReason, reason)
		})
	}
}
