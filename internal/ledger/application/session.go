package application

import (
	"context"
	"sync"

	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
)

type SessionDeps struct {
	Donations domain.DonationRepository
	Expenses  domain.ExpenseRepository
	Resolver  *CapabilityResolver
	Registry  *ManagerRegistry
	PageSize  int
	Flow      FlowDeps
}

// Session holds everything one signed-in actor accumulates: one coordinator per
// logical list and one donation flow.
type Session struct {
	Actor domain.Actor
	Flow  *DonationFlow

	deps SessionDeps

	mu        sync.Mutex
	donations map[string]*ListCoordinator[domain.Donation]
	expenses  map[string]*ListCoordinator[domain.Expense]
	// loaded holds the assignments fetched with the last view load of each
	// subcategory.
	loaded map[string][]string
}

func newSession(actor domain.Actor, deps SessionDeps) *Session {
	return &Session{
		Actor:     actor,
		Flow:      NewDonationFlow(actor, deps.Flow),
		deps:      deps,
		donations: make(map[string]*ListCoordinator[domain.Donation]),
		expenses:  make(map[string]*ListCoordinator[domain.Expense]),
		loaded:    make(map[string][]string),
	}
}

// RememberAssignments replaces the assignments the session loaded for a
// subcategory. Only ids fetched from the assignment store belong here.
func (s *Session) RememberAssignments(subcategoryID string, managerIDs []string) {
	ids := make([]string, len(managerIDs))
	copy(ids, managerIDs)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded[subcategoryID] = ids
}

func (s *Session) LoadedManagers(subcategoryID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.loaded[subcategoryID]))
	copy(ids, s.loaded[subcategoryID])
	return ids
}

// AssignmentSources returns the assignments loaded with the session's view and
// the registry's latest fetch. Capability checks take their union.
func (s *Session) AssignmentSources(subcategoryID string) [][]string {
	return [][]string{s.LoadedManagers(subcategoryID), s.deps.Registry.CachedManagerIDs(subcategoryID)}
}

func (s *Session) CanManage(subcategoryID string) bool {
	return s.deps.Resolver.CanManage(s.Actor, subcategoryID, s.AssignmentSources(subcategoryID)...)
}

func (s *Session) ViewAll(subcategoryID string) bool {
	return s.deps.Resolver.CanViewAllStatusesFor(s.Actor, subcategoryID, s.AssignmentSources(subcategoryID)...)
}

// SubcategoryDonations returns the donation list of a subcategory. Visibility is
// part of the list's filter, so the query itself excludes non-public entries and
// a visibility change restarts the list.
func (s *Session) SubcategoryDonations(subcategoryID string) *ListCoordinator[domain.Donation] {
	key := "donations:sub:" + subcategoryID
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.donations[key]; ok {
		return c
	}
	c := NewListCoordinator[domain.Donation](key, subcategoryID, s.deps.PageSize,
		func(ctx context.Context, subjectID string, page, limit int, filter domain.ListFilter) (domain.Page[domain.Donation], error) {
			return s.deps.Donations.List(ctx, domain.DonationQuery{
				SubcategoryID: subjectID,
				Page:          page,
				Limit:         limit,
				Filter:        filter,
				PublicOnly:    filter.PublicOnly,
			})
		}).WithVisibility(func() bool { return !s.ViewAll(subcategoryID) })
	s.donations[key] = c
	return c
}

func (s *Session) SubcategoryExpenses(subcategoryID string) *ListCoordinator[domain.Expense] {
	key := "expenses:sub:" + subcategoryID
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.expenses[key]; ok {
		return c
	}
	c := NewListCoordinator[domain.Expense](key, subcategoryID, s.deps.PageSize,
		func(ctx context.Context, subjectID string, page, limit int, filter domain.ListFilter) (domain.Page[domain.Expense], error) {
			return s.deps.Expenses.List(ctx, domain.ExpenseQuery{
				SubcategoryID: subjectID,
				Page:          page,
				Limit:         limit,
				Filter:        filter,
				PublicOnly:    filter.PublicOnly,
			})
		}).WithVisibility(func() bool { return !s.ViewAll(subcategoryID) })
	s.expenses[key] = c
	return c
}

// DonorDonations lists the actor's own donations, narrowed to one category when
// categoryID is set.
func (s *Session) DonorDonations(categoryID string) *ListCoordinator[domain.Donation] {
	key := "donations:donor:" + s.Actor.ID
	if categoryID != "" {
		key += ":cat:" + categoryID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.donations[key]; ok {
		return c
	}
	c := NewListCoordinator[domain.Donation](key, s.Actor.ID, s.deps.PageSize,
		func(ctx context.Context, subjectID string, page, limit int, filter domain.ListFilter) (domain.Page[domain.Donation], error) {
			return s.deps.Donations.List(ctx, domain.DonationQuery{
				DonorID:    subjectID,
				CategoryID: categoryID,
				Page:       page,
				Limit:      limit,
				Filter:     filter,
				PublicOnly: filter.PublicOnly,
			})
		}).WithVisibility(func() bool { return !s.deps.Resolver.CanViewAllStatuses(s.Actor) })
	s.donations[key] = c
	return c
}

// SessionRegistry hands out one Session per actor id.
type SessionRegistry struct {
	deps SessionDeps

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionRegistry(deps SessionDeps) *SessionRegistry {
	if deps.PageSize <= 0 {
		deps.PageSize = DefaultPageSize
	}
	return &SessionRegistry{deps: deps, sessions: make(map[string]*Session)}
}

// ForActor returns the actor's session, creating it on first use. A session whose
// roles changed since it was created is replaced.
func (r *SessionRegistry) ForActor(actor domain.Actor) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[actor.ID]; ok && sameActor(s.Actor, actor) {
		return s
	}
	s := newSession(actor, r.deps)
	r.sessions[actor.ID] = s
	return s
}

// Drop forgets the actor's session, its lists and any donation attempt.
func (r *SessionRegistry) Drop(actorID string) {
	r.mu.Lock()
	s, ok := r.sessions[actorID]
	delete(r.sessions, actorID)
	r.mu.Unlock()
	if ok {
		s.Flow.Cancel()
	}
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func sameActor(a, b domain.Actor) bool {
	if a.AccountType != b.AccountType || len(a.Roles) != len(b.Roles) {
		return false
	}
	for i := range a.Roles {
		if a.Roles[i] != b.Roles[i] {
			return false
		}
	}
	return true
}
