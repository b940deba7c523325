package application

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
	ledgerErrors "github.com/sebuszqo/FundLedger/internal/ledger/errors"
)

type AssignmentDiff struct {
	ToAdd    []string `json:"to_add"`
	ToRemove []string `json:"to_remove"`
}

// Reconcile computes the minimal change from current to desired. Managers present
// in both are left alone, including their payment details.
func Reconcile(desired, current []string) AssignmentDiff {
	want := UnionManagerIDs(desired)
	have := UnionManagerIDs(current)

	diff := AssignmentDiff{ToAdd: []string{}, ToRemove: []string{}}
	for id := range want {
		if _, ok := have[id]; !ok {
			diff.ToAdd = append(diff.ToAdd, id)
		}
	}
	for id := range have {
		if _, ok := want[id]; !ok {
			diff.ToRemove = append(diff.ToRemove, id)
		}
	}
	sort.Strings(diff.ToAdd)
	sort.Strings(diff.ToRemove)
	return diff
}

// ManagerRegistry holds the managers assigned to each subcategory. The store is
// the source of truth; the in-memory view is replaced on every fetch.
type ManagerRegistry struct {
	repo   domain.AssignmentRepository
	images domain.PaymentImageStore

	mu            sync.RWMutex
	bySubcategory map[string][]domain.ManagerAssignment
}

func NewManagerRegistry(repo domain.AssignmentRepository, images domain.PaymentImageStore) *ManagerRegistry {
	return &ManagerRegistry{
		repo:          repo,
		images:        images,
		bySubcategory: make(map[string][]domain.ManagerAssignment),
	}
}

// ListAssigned fetches the assignments of a subcategory and refreshes the cache.
func (r *ManagerRegistry) ListAssigned(ctx context.Context, subcategoryID string) ([]domain.ManagerAssignment, error) {
	assignments, err := r.repo.ListBySubcategory(ctx, subcategoryID)
	if err != nil {
		return nil, ledgerErrors.NewTransientError("assignment fetch", err)
	}
	if assignments == nil {
		assignments = []domain.ManagerAssignment{}
	}
	r.mu.Lock()
	r.bySubcategory[subcategoryID] = assignments
	r.mu.Unlock()
	return copyAssignments(assignments), nil
}

// Cached returns the last fetched assignments without I/O.
func (r *ManagerRegistry) Cached(subcategoryID string) []domain.ManagerAssignment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyAssignments(r.bySubcategory[subcategoryID])
}

func (r *ManagerRegistry) CachedManagerIDs(subcategoryID string) []string {
	return domain.ManagerIDs(r.Cached(subcategoryID))
}

func (r *ManagerRegistry) Find(subcategoryID, managerID string) (domain.ManagerAssignment, bool) {
	for _, a := range r.Cached(subcategoryID) {
		if a.ManagerID == managerID {
			return a, true
		}
	}
	return domain.ManagerAssignment{}, false
}

// SetAssignment assigns the manager if needed and stores the given payment details.
func (r *ManagerRegistry) SetAssignment(ctx context.Context, actor domain.Actor, managerID, subcategoryID string, details domain.AssignmentDetails) error {
	if !actor.IsAdmin() {
		return ledgerErrors.NewCapabilityError(actor.ID, "edit manager assignments")
	}
	if err := details.Validate(); err != nil {
		return err
	}
	current, err := r.ListAssigned(ctx, subcategoryID)
	if err != nil {
		return err
	}
	if _, ok := UnionManagerIDs(domain.ManagerIDs(current))[managerID]; !ok {
		if err := r.repo.Create(ctx, managerID, subcategoryID); err != nil {
			return fmt.Errorf("could not assign manager %s: %w", managerID, err)
		}
	}
	if err := r.repo.UpdateDetails(ctx, managerID, subcategoryID, details); err != nil {
		return fmt.Errorf("could not update manager %s details: %w", managerID, err)
	}
	_, err = r.ListAssigned(ctx, subcategoryID)
	return err
}

// AttachPaymentImage uploads the image and records its reference on the assignment.
func (r *ManagerRegistry) AttachPaymentImage(ctx context.Context, actor domain.Actor, managerID, subcategoryID string, data []byte, contentType string) (string, error) {
	if !actor.IsAdmin() {
		return "", ledgerErrors.NewCapabilityError(actor.ID, "edit manager assignments")
	}
	if len(data) == 0 {
		return "", ledgerErrors.NewValidationError("Payment image is empty")
	}
	assignment, ok := r.Find(subcategoryID, managerID)
	if !ok {
		if _, err := r.ListAssigned(ctx, subcategoryID); err != nil {
			return "", err
		}
		if assignment, ok = r.Find(subcategoryID, managerID); !ok {
			return "", ledgerErrors.ErrUnknownManager
		}
	}
	key := fmt.Sprintf("payment-images/%s/%s", subcategoryID, managerID)
	ref, err := r.images.Put(ctx, key, data, contentType)
	if err != nil {
		return "", fmt.Errorf("could not store payment image: %w", err)
	}
	details := assignment.Details
	details.PaymentImage = &ref
	if err := r.SetAssignment(ctx, actor, managerID, subcategoryID, details); err != nil {
		return "", err
	}
	return ref, nil
}

func (r *ManagerRegistry) RemoveAssignment(ctx context.Context, actor domain.Actor, managerID, subcategoryID string) error {
	if !actor.IsAdmin() {
		return ledgerErrors.NewCapabilityError(actor.ID, "edit manager assignments")
	}
	if err := r.repo.Delete(ctx, managerID, subcategoryID); err != nil {
		return fmt.Errorf("could not remove manager %s: %w", managerID, err)
	}
	_, err := r.ListAssigned(ctx, subcategoryID)
	return err
}

// Apply saves the desired manager set. Adds and removes run concurrently; if any
// of them fail the error lists exactly which. The cache is always reloaded from
// the store afterwards instead of trusting the attempted diff.
func (r *ManagerRegistry) Apply(ctx context.Context, actor domain.Actor, subcategoryID string, desired []string) (AssignmentDiff, error) {
	if !actor.IsAdmin() {
		return AssignmentDiff{}, ledgerErrors.NewCapabilityError(actor.ID, "edit manager assignments")
	}
	current, err := r.ListAssigned(ctx, subcategoryID)
	if err != nil {
		return AssignmentDiff{}, err
	}
	diff := Reconcile(desired, domain.ManagerIDs(current))
	if len(diff.ToAdd) == 0 && len(diff.ToRemove) == 0 {
		return diff, nil
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []ledgerErrors.FailedOp
	)
	run := func(kind, managerID string, op func(context.Context, string, string) error) {
		defer wg.Done()
		if err := op(ctx, managerID, subcategoryID); err != nil {
			mu.Lock()
			failed = append(failed, ledgerErrors.FailedOp{Kind: kind, ManagerID: managerID, Err: err})
			mu.Unlock()
		}
	}
	for _, id := range diff.ToAdd {
		wg.Add(1)
		go run("add", id, r.repo.Create)
	}
	for _, id := range diff.ToRemove {
		wg.Add(1)
		go run("remove", id, r.repo.Delete)
	}
	wg.Wait()

	if _, refreshErr := r.ListAssigned(ctx, subcategoryID); refreshErr != nil {
		log.Printf("level=warn component=manager_registry subcategory=%s msg=\"refresh after apply failed\" err=%v", subcategoryID, refreshErr)
	}

	if len(failed) > 0 {
		sort.Slice(failed, func(i, j int) bool {
			if failed[i].Kind != failed[j].Kind {
				return failed[i].Kind < failed[j].Kind
			}
			return failed[i].ManagerID < failed[j].ManagerID
		})
		total := len(diff.ToAdd) + len(diff.ToRemove)
		return diff, &ledgerErrors.PartialFailureError{Failed: failed, Succeeded: total - len(failed)}
	}
	return diff, nil
}

func copyAssignments(in []domain.ManagerAssignment) []domain.ManagerAssignment {
	out := make([]domain.ManagerAssignment, len(in))
	copy(out, in)
	return out
}
