package access

import (
	"github.com/MarkoPoloResearchLab/claimledger/pkg/claims"
)

// Capability names an action a registration may perform.
type Capability string

const (
	CapClaimTurnover     Capability = "claim_turnover"
	CapOpenDispute       Capability = "open_dispute"
	CapResolveDispute    Capability = "resolve_dispute"
	CapRequestWithdrawal Capability = "request_withdrawal"
	CapReviewWithdrawal  Capability = "review_withdrawal"
	CapCloseSupertask    Capability = "close_supertask"
	CapViewRatings       Capability = "view_ratings"
	CapTriggerSync       Capability = "trigger_sync"
)

// roleCapabilities maps each role onto its allowed actions. Moderators
// keep the full seller surface since they sell too.
var roleCapabilities = map[claims.Role][]Capability{
	claims.RoleSeller: {
		CapClaimTurnover,
		CapOpenDispute,
		CapRequestWithdrawal,
		CapViewRatings,
	},
	claims.RoleModerator: {
		CapClaimTurnover,
		CapOpenDispute,
		CapResolveDispute,
		CapRequestWithdrawal,
		CapViewRatings,
	},
	claims.RoleManager: {
		CapReviewWithdrawal,
		CapCloseSupertask,
		CapViewRatings,
		CapTriggerSync,
	},
}

// Capabilities returns the actions a role may perform.
func Capabilities(role claims.Role) []Capability {
	capabilities := roleCapabilities[role]
	return append([]Capability(nil), capabilities...)
}

// Allowed reports whether the role may perform the capability.
func Allowed(role claims.Role, capability Capability) bool {
	for _, candidate := range roleCapabilities[role] {
		if candidate == capability {
			return true
		}
	}
	return false
}
