package federation

import (
	"fmt"

	"github.com/kilianp07/routeloop/core/model"
)

// Priority rule components. The rule is applied in configured order until
// one component breaks the tie; actor_id always decides in the end.
const (
	RuleRoleWeight = "role_weight"
	RuleEarliest   = "earliest"
	RuleActorID    = "actor_id"
)

// DefaultPriorityRule is role weight, then earliest claim, then actor ID.
var DefaultPriorityRule = []string{RuleRoleWeight, RuleEarliest, RuleActorID}

// ValidatePriorityRule rejects unknown components.
func ValidatePriorityRule(rule []string) error {
	for _, r := range rule {
		switch r {
		case RuleRoleWeight, RuleEarliest, RuleActorID:
		default:
			return fmt.Errorf("unknown priority rule component %q", r)
		}
	}
	return nil
}

// Wins reports whether claim a takes priority over claim b under the rule.
// The comparison is pure and total over distinct actors, so any node can
// independently recompute the same resolution from the same claim-log
// state. No coordinator election required.
func Wins(rule []string, a, b model.ResourceClaim) bool {
	for _, r := range rule {
		switch r {
		case RuleRoleWeight:
			if a.RoleWeight != b.RoleWeight {
				return a.RoleWeight > b.RoleWeight
			}
		case RuleEarliest:
			if !a.IssuedAt.Equal(b.IssuedAt) {
				return a.IssuedAt.Before(b.IssuedAt)
			}
		case RuleActorID:
			if a.ActorID != b.ActorID {
				return a.ActorID < b.ActorID
			}
		}
	}
	return a.ActorID < b.ActorID
}
