package application

import "github.com/sebuszqo/FundLedger/internal/ledger/domain"

// CapabilityResolver answers what an actor may see and do for one subcategory.
// Assigned manager ids may come from several sources (the list the client already
// holds and the list just fetched); they are always unioned, never ranked.
type CapabilityResolver struct{}

func NewCapabilityResolver() *CapabilityResolver {
	return &CapabilityResolver{}
}

func (r *CapabilityResolver) CanManage(actor domain.Actor, subcategoryID string, assigned ...[]string) bool {
	if !actor.IsManagementAccount() || subcategoryID == "" {
		return false
	}
	if actor.HasRole(domain.RoleAdmin) || actor.HasRole(domain.RoleSubAdmin) {
		return true
	}
	if actor.HasRole(domain.RoleDonationManager) {
		_, ok := UnionManagerIDs(assigned...)[actor.ID]
		return ok
	}
	return false
}

// CanViewAllStatuses is the subcategory-independent part of the rule set: only
// admins see every status everywhere.
func (r *CapabilityResolver) CanViewAllStatuses(actor domain.Actor) bool {
	return actor.IsAdmin()
}

// CanViewAllStatusesFor also grants visibility to managers assigned to the subcategory.
func (r *CapabilityResolver) CanViewAllStatusesFor(actor domain.Actor, subcategoryID string, assigned ...[]string) bool {
	return r.CanManage(actor, subcategoryID, assigned...)
}

func (r *CapabilityResolver) CanDownloadReport(actor domain.Actor, subcategoryID string, visibleEntries int, assigned ...[]string) bool {
	return visibleEntries > 0 && r.CanManage(actor, subcategoryID, assigned...)
}

func UnionManagerIDs(sources ...[]string) map[string]struct{} {
	union := make(map[string]struct{})
	for _, ids := range sources {
		for _, id := range ids {
			if id != "" {
				union[id] = struct{}{}
			}
		}
	}
	return union
}
