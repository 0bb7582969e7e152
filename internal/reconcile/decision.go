package reconcile

import (
	"errors"
	"fmt"

	"github.com/draxon/draxon-bots/internal/members"
	"github.com/draxon/draxon-bots/internal/ranks"
)

// State is the reconciliation classification of one guild member.
type State int

const (
	StateNoProfile State = iota
	StateInOrgAsMain
	StateInOrgAsAffiliateOverRank
	StateInOrgAsAffiliateOk
	StateNotInOrg
)

func (s State) String() string {
	switch s {
	case StateNoProfile:
		return "no_profile"
	case StateInOrgAsMain:
		return "in_org_main"
	case StateInOrgAsAffiliateOverRank:
		return "in_org_affiliate_over_rank"
	case StateInOrgAsAffiliateOk:
		return "in_org_affiliate_ok"
	case StateNotInOrg:
		return "not_in_org"
	default:
		return "unknown"
	}
}

const (
	ReasonNotInOrg  = "Not found in organization"
	ReasonAffiliate = "Affiliate status incompatible with leadership role"
)

// ErrDemotionAboveCeiling reports a default demotion rank above the leadership ceiling.
var ErrDemotionAboveCeiling = errors.New("reconcile: default demotion rank is above the leadership ceiling")

// Policy names the ladder positions the engine enforces.
type Policy struct {
	Ladder            *ranks.Ladder
	LeadershipCeiling string
	DefaultDemotion   string
	Unaffiliated      string
}

// Decision is the outcome for one member: a no-op, or a single swap to Target.
type Decision struct {
	State   State
	Current string
	Target  string
	Reason  string
}

// Changes reports whether the decision requires a rank swap.
func (d Decision) Changes() bool {
	return d.Target != ""
}

// Decide classifies a member with a linked profile. roles are the member's
// current role names and inOrg reports whether the linked handle is on the roster.
// A member missing from the roster keeps its cached org status.
func (p Policy) Decide(profile members.Profile, roles []string, inOrg bool) Decision {
	current, _ := p.Ladder.Current(roles)

	if !inOrg {
		decision := Decision{State: StateNotInOrg, Current: current}
		if current != p.Unaffiliated {
			decision.Target = p.Unaffiliated
			decision.Reason = ReasonNotInOrg
		}
		return decision
	}

	if profile.OrgStatus == members.StatusAffiliate {
		if current != "" && p.Ladder.Above(current, p.LeadershipCeiling) {
			return Decision{
				State:   StateInOrgAsAffiliateOverRank,
				Current: current,
				Target:  p.DefaultDemotion,
				Reason:  ReasonAffiliate,
			}
		}
		return Decision{State: StateInOrgAsAffiliateOk, Current: current}
	}

	return Decision{State: StateInOrgAsMain, Current: current}
}

// Validate checks that every policy rank exists on the ladder and that the
// demotion target sits at or below the leadership ceiling.
func (p Policy) Validate() error {
	for _, name := range []string{p.LeadershipCeiling, p.DefaultDemotion, p.Unaffiliated} {
		if err := p.Ladder.Validate(name); err != nil {
			return err
		}
	}
	if p.Ladder.Above(p.DefaultDemotion, p.LeadershipCeiling) {
		return fmt.Errorf("%w: %s above %s", ErrDemotionAboveCeiling, p.DefaultDemotion, p.LeadershipCeiling)
	}
	return nil
}
