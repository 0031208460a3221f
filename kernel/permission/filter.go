// Package permission filters the ability registry down to the subset the
// acting identity may invoke. Filtering happens once per orchestration run,
// never cached across runs.
package permission

import (
	"fmt"

	"github.com/perchlabs/wrenbot/kernel/ability"
	"github.com/perchlabs/wrenbot/kernel/identity"
)

// Decision records one allow/deny outcome for observability.
type Decision struct {
	Ability string
	Allowed bool
	Reason  string
}

func (d Decision) String() string {
	verdict := "denied"
	if d.Allowed {
		verdict = "allowed"
	}
	return d.Ability + " (" + verdict + ")"
}

// AllowedFor evaluates CanInvoke for every ability and returns the allowed
// subset in input order plus the full decision log. A predicate that panics
// counts as denied, never as fatal.
func AllowedFor(id identity.Identity, abilities []ability.Ability) ([]ability.Ability, []Decision) {
	allowed := make([]ability.Ability, 0, len(abilities))
	decisions := make([]Decision, 0, len(abilities))
	for _, a := range abilities {
		if a == nil {
			continue
		}
		ok, reason := evaluate(id, a)
		decisions = append(decisions, Decision{Ability: a.Name(), Allowed: ok, Reason: reason})
		if ok {
			allowed = append(allowed, a)
		}
	}
	return allowed, decisions
}

func evaluate(id identity.Identity, a ability.Ability) (allowed bool, reason string) {
	defer func() {
		if r := recover(); r != nil {
			allowed = false
			reason = fmt.Sprintf("predicate panicked: %v", r)
		}
	}()
	if a.CanInvoke(id) {
		return true, ""
	}
	return false, "predicate returned false"
}
