package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
	ledgerErrors "github.com/sebuszqo/FundLedger/internal/ledger/errors"
	"github.com/sebuszqo/FundLedger/internal/notify"
	"github.com/sebuszqo/FundLedger/pkg/gateway"
	"github.com/shopspring/decimal"
)

type FlowState string

const (
	StateIdle                  FlowState = "idle"
	StateModeSelect            FlowState = "mode_select"
	StateOnlineAmountEntry     FlowState = "online_amount_entry"
	StateOfflineManagerBrowse  FlowState = "offline_manager_browse"
	StateGatewaySettlement     FlowState = "gateway_settlement"
	StateOfflinePaymentDetails FlowState = "offline_payment_details"
	StateRecordCreation        FlowState = "record_creation"
	// StateSettledNotRecorded ends an attempt whose charge went through but whose
	// record could not be written.
	StateSettledNotRecorded FlowState = "settled_not_recorded"
)

type DonationMode string

const (
	ModeOnline  DonationMode = "online"
	ModeOffline DonationMode = "offline"
)

// DonationAttempt is the transient state of one donation, dropped when the flow
// returns to idle.
type DonationAttempt struct {
	ID                   string                    `json:"id"`
	Subcategory          domain.Subcategory        `json:"subcategory"`
	Mode                 DonationMode              `json:"mode,omitempty"`
	Amount               decimal.Decimal           `json:"amount"`
	Manager              *domain.ManagerAssignment `json:"manager,omitempty"`
	GatewayCorrelationID string                    `json:"gateway_correlation_id,omitempty"`
}

type PaymentGateway interface {
	OpenCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.Settlement, error)
}

type FlowSettings struct {
	Currency         string
	SurchargePercent decimal.Decimal
}

func DefaultFlowSettings() FlowSettings {
	return FlowSettings{Currency: "INR", SurchargePercent: decimal.NewFromInt(2)}
}

// SurchargedMinorUnits inflates a major-unit amount by percent and converts it to
// minor units, rounding half away from zero.
func SurchargedMinorUnits(amount, percent decimal.Decimal) int64 {
	hundred := decimal.NewFromInt(100)
	factor := decimal.NewFromInt(1).Add(percent.Div(hundred))
	return amount.Mul(factor).Mul(hundred).Round(0).IntPart()
}

type FlowDeps struct {
	Registry  *ManagerRegistry
	Donations domain.DonationRepository
	Gateway   PaymentGateway
	Gaps      domain.SettlementGapStore
	Notifier  notify.Sink
	Resolver  *CapabilityResolver
	Settings  FlowSettings
}

type SettleOutcome string

const (
	OutcomeRecorded  SettleOutcome = "recorded"
	OutcomeCancelled SettleOutcome = "cancelled"
)

type SettleResult struct {
	Outcome      SettleOutcome    `json:"outcome"`
	Donation     *domain.Donation `json:"donation,omitempty"`
	ChargedMinor int64            `json:"charged_minor,omitempty"`
}

type OfflineEntry struct {
	Donor          domain.DonorInfo `json:"donor"`
	Amount         decimal.Decimal  `json:"amount"`
	TransactionRef string           `json:"transaction_ref,omitempty"`
}

// DonationFlow drives one session's donation attempts. Only one attempt may be
// active at a time.
type DonationFlow struct {
	deps  FlowDeps
	actor domain.Actor

	mu       sync.Mutex
	state    FlowState
	attempt  *DonationAttempt
	settling bool
}

func NewDonationFlow(actor domain.Actor, deps FlowDeps) *DonationFlow {
	if deps.Settings.Currency == "" {
		deps.Settings = DefaultFlowSettings()
	}
	return &DonationFlow{deps: deps, actor: actor, state: StateIdle}
}

func (f *DonationFlow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *DonationFlow) Attempt() *DonationAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attempt == nil {
		return nil
	}
	attempt := *f.attempt
	return &attempt
}

func (f *DonationFlow) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeLocked()
}

func (f *DonationFlow) activeLocked() bool {
	return f.settling || (f.state != StateIdle && f.state != StateSettledNotRecorded)
}

// Start opens a new attempt. Anything left from a previous attempt is discarded.
func (f *DonationFlow) Start(subcategory domain.Subcategory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activeLocked() {
		return ledgerErrors.ErrAttemptActive
	}
	f.resetLocked()
	if !subcategory.AcceptsDonations() {
		return ledgerErrors.ErrInactive
	}
	f.attempt = &DonationAttempt{ID: uuid.NewString(), Subcategory: subcategory}
	f.state = StateModeSelect
	return nil
}

// ChooseOnline moves to amount entry, or straight to settlement when the
// subcategory fixes the amount.
func (f *DonationFlow) ChooseOnline() (FlowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateModeSelect {
		return f.state, ledgerErrors.ErrInvalidTransition
	}
	sub := f.attempt.Subcategory
	if sub.Type == domain.SpecificAmount {
		if sub.FixedAmount == nil || !sub.FixedAmount.IsPositive() {
			return f.state, ledgerErrors.ErrFixedAmountRequired
		}
		f.attempt.Mode = ModeOnline
		f.attempt.Amount = *sub.FixedAmount
		f.state = StateGatewaySettlement
		return f.state, nil
	}
	f.attempt.Mode = ModeOnline
	f.state = StateOnlineAmountEntry
	return f.state, nil
}

func (f *DonationFlow) EnterAmount(amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateOnlineAmountEntry {
		return ledgerErrors.ErrInvalidTransition
	}
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return ledgerErrors.ErrNonPositiveAmount
	}
	f.attempt.Amount = amount
	f.state = StateGatewaySettlement
	return nil
}

// ChooseOffline lists the managers who collect offline payments for the
// subcategory. With nobody assigned the flow stays in mode selection.
func (f *DonationFlow) ChooseOffline(ctx context.Context) ([]domain.ManagerAssignment, error) {
	f.mu.Lock()
	if f.state != StateModeSelect {
		f.mu.Unlock()
		return nil, ledgerErrors.ErrInvalidTransition
	}
	attemptID := f.attempt.ID
	subcategoryID := f.attempt.Subcategory.ID
	f.mu.Unlock()

	assignments, err := f.deps.Registry.ListAssigned(ctx, subcategoryID)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateModeSelect || f.attempt == nil || f.attempt.ID != attemptID {
		return nil, ledgerErrors.ErrInvalidTransition
	}
	if len(assignments) == 0 {
		return nil, ledgerErrors.ErrNoManagerAssigned
	}
	f.attempt.Mode = ModeOffline
	f.state = StateOfflineManagerBrowse
	return assignments, nil
}

// SelectManager shows the chosen manager's payment instructions.
func (f *DonationFlow) SelectManager(managerID string) (domain.ManagerAssignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateOfflineManagerBrowse {
		return domain.ManagerAssignment{}, ledgerErrors.ErrInvalidTransition
	}
	assignment, ok := f.deps.Registry.Find(f.attempt.Subcategory.ID, managerID)
	if !ok {
		return domain.ManagerAssignment{}, ledgerErrors.ErrUnknownManager
	}
	f.attempt.Manager = &assignment
	f.state = StateOfflinePaymentDetails
	return assignment, nil
}

// Finish closes an offline attempt after the donor has seen the payment details.
// No record is created; a manager records the donation once the money arrives.
func (f *DonationFlow) Finish() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateOfflinePaymentDetails {
		return ledgerErrors.ErrInvalidTransition
	}
	f.resetLocked()
	return nil
}

// Cancel abandons the attempt from any step. A checkout already running is not
// interrupted; if it captures, the donation is still recorded.
func (f *DonationFlow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetLocked()
}

func (f *DonationFlow) resetLocked() {
	f.state = StateIdle
	f.attempt = nil
}

// Settle charges the attempt's amount plus the surcharge and records the
// donation at the original amount. The record is validated before checkout
// opens. A cancelled checkout is a normal outcome.
func (f *DonationFlow) Settle(ctx context.Context, prefill gateway.Prefill) (*SettleResult, error) {
	f.mu.Lock()
	if f.state != StateGatewaySettlement || f.settling {
		f.mu.Unlock()
		return nil, ledgerErrors.ErrInvalidTransition
	}
	donation := &domain.Donation{
		ID:            uuid.NewString(),
		SubcategoryID: f.attempt.Subcategory.ID,
		CategoryID:    f.attempt.Subcategory.CategoryID,
		Amount:        f.attempt.Amount,
		PaymentMethod: domain.DonationOnline,
		PaymentStatus: domain.DonationSuccess,
		Donor:         domain.DonorInfo{UserID: &f.actor.ID, Name: f.actor.Name, Phone: prefill.Contact},
	}
	if err := donation.Validate(); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.settling = true
	f.attempt.GatewayCorrelationID = uuid.NewString()
	attempt := *f.attempt
	f.mu.Unlock()

	chargeMinor := SurchargedMinorUnits(attempt.Amount, f.deps.Settings.SurchargePercent)
	settlement, err := f.deps.Gateway.OpenCheckout(ctx, gateway.CheckoutRequest{
		AmountMinor:   chargeMinor,
		Currency:      f.deps.Settings.Currency,
		Description:   attempt.Subcategory.Title,
		Prefill:       prefill,
		CorrelationID: attempt.GatewayCorrelationID,
		Notes:         map[string]string{"subcategory_id": attempt.Subcategory.ID, "donor_id": f.actor.ID},
	})

	if errors.Is(err, gateway.ErrCheckoutCancelled) {
		f.finishSettling(attempt.ID, StateIdle)
		log.Printf("level=info component=donation_flow attempt=%s msg=\"checkout cancelled by donor\"", attempt.ID)
		return &SettleResult{Outcome: OutcomeCancelled}, nil
	}
	if err != nil {
		f.finishSettling(attempt.ID, StateModeSelect)
		log.Printf("level=warn component=donation_flow attempt=%s msg=\"checkout failed\" err=%v", attempt.ID, err)
		f.deps.Notifier.Notify(notify.Error(f.actor.ID, "Payment failed", "The payment could not be completed. Please try again."))
		return nil, fmt.Errorf("payment failed: %w", err)
	}

	f.mu.Lock()
	if f.attempt != nil && f.attempt.ID == attempt.ID {
		f.state = StateRecordCreation
	}
	f.mu.Unlock()

	donation.TransactionRef = settlement.Reference
	donation.CreatedAt = time.Now().UTC()

	// The money has moved; a dropped client must not stop the record.
	recordCtx := context.WithoutCancel(ctx)
	if _, err := f.deps.Donations.Create(recordCtx, donation); err != nil {
		gapErr := &ledgerErrors.SettledNotRecordedError{
			SettlementRef: settlement.Reference,
			SubcategoryID: attempt.Subcategory.ID,
			Amount:        attempt.Amount,
			Err:           err,
		}
		f.recordGap(recordCtx, donation, err)
		f.finishSettling(attempt.ID, StateSettledNotRecorded)
		log.Printf("level=error component=donation_flow attempt=%s settlement_ref=%s amount=%s msg=\"payment captured but not recorded\" err=%v",
			attempt.ID, settlement.Reference, attempt.Amount.StringFixed(2), err)
		f.deps.Notifier.Notify(notify.Error(f.actor.ID, "Payment received, record pending",
			fmt.Sprintf("Your payment %s went through but could not be recorded yet. Our team will reconcile it.", settlement.Reference)))
		return nil, gapErr
	}

	f.finishSettling(attempt.ID, StateIdle)
	f.deps.Notifier.Notify(notify.Success(f.actor.ID, "Thank you", fmt.Sprintf("Your donation of %s to %s was received.", attempt.Amount.StringFixed(2), attempt.Subcategory.Title)))
	return &SettleResult{Outcome: OutcomeRecorded, Donation: donation, ChargedMinor: chargeMinor}, nil
}

func (f *DonationFlow) finishSettling(attemptID string, next FlowState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settling = false
	if f.attempt == nil || f.attempt.ID != attemptID {
		return
	}
	switch next {
	case StateIdle:
		f.resetLocked()
	case StateModeSelect:
		f.attempt.Mode = ""
		f.attempt.Amount = decimal.Zero
		f.attempt.GatewayCorrelationID = ""
		f.state = StateModeSelect
	default:
		f.state = next
	}
}

func (f *DonationFlow) recordGap(ctx context.Context, donation *domain.Donation, cause error) {
	gap := domain.SettlementGap{
		SettlementRef: donation.TransactionRef,
		SubcategoryID: donation.SubcategoryID,
		CategoryID:    donation.CategoryID,
		Donor:         donation.Donor,
		Amount:        donation.Amount,
		Reason:        cause.Error(),
		CapturedAt:    donation.CreatedAt,
	}
	if err := f.deps.Gaps.Record(ctx, gap); err != nil {
		log.Printf("level=error component=donation_flow settlement_ref=%s msg=\"could not persist settlement gap\" err=%v", gap.SettlementRef, err)
	}
	f.deps.Notifier.Notify(notify.Error("", "Settlement gap", fmt.Sprintf("Settlement %s for %s (subcategory %s) is not recorded: %v",
		gap.SettlementRef, gap.Amount.StringFixed(2), gap.SubcategoryID, cause)))
}

// DonateNow runs the online path in one call: start, pick online, take the fixed
// amount or the given one, and settle.
func (f *DonationFlow) DonateNow(ctx context.Context, subcategory domain.Subcategory, amount *decimal.Decimal, prefill gateway.Prefill) (*SettleResult, error) {
	if err := f.Start(subcategory); err != nil {
		return nil, err
	}
	state, err := f.ChooseOnline()
	if err != nil {
		f.Cancel()
		return nil, err
	}
	if state == StateOnlineAmountEntry {
		if amount == nil {
			f.Cancel()
			return nil, ledgerErrors.ErrNonPositiveAmount
		}
		if err := f.EnterAmount(*amount); err != nil {
			f.Cancel()
			return nil, err
		}
	}
	result, err := f.Settle(ctx, prefill)
	if err != nil && !ledgerErrors.IsSettledNotRecorded(err) {
		f.Cancel()
	}
	return result, err
}

// CaptureOffline records a donation a manager received outside the gateway. The
// capability check runs before any I/O.
func (f *DonationFlow) CaptureOffline(ctx context.Context, subcategory domain.Subcategory, entry OfflineEntry, knownManagerIDs []string) (*domain.Donation, error) {
	if !f.deps.Resolver.CanManage(f.actor, subcategory.ID, knownManagerIDs, f.deps.Registry.CachedManagerIDs(subcategory.ID)) {
		return nil, ledgerErrors.NewCapabilityError(f.actor.ID, "record offline donations for this subcategory")
	}
	entry.Donor.Name = strings.TrimSpace(entry.Donor.Name)
	if entry.Donor.Name == "" {
		return nil, ledgerErrors.ErrDonorNameRequired
	}
	if !entry.Amount.Round(2).IsPositive() {
		return nil, ledgerErrors.ErrNonPositiveAmount
	}

	ref := strings.TrimSpace(entry.TransactionRef)
	if ref == "" {
		ref = "offline-" + uuid.NewString()
	}
	createdBy := f.actor.ID
	donation := &domain.Donation{
		ID:             uuid.NewString(),
		SubcategoryID:  subcategory.ID,
		CategoryID:     subcategory.CategoryID,
		Amount:         entry.Amount,
		PaymentMethod:  domain.DonationOffline,
		PaymentStatus:  domain.DonationSuccess,
		Donor:          entry.Donor,
		CreatedBy:      &createdBy,
		TransactionRef: ref,
		CreatedAt:      time.Now().UTC(),
	}
	donation.RoundToTwoDecimalPlaces()
	if err := donation.Validate(); err != nil {
		return nil, err
	}

	candidate := *donation
	created, err := f.deps.Donations.Create(ctx, donation)
	if err != nil {
		log.Printf("level=warn component=donation_flow subcategory=%s manager=%s msg=\"offline donation create failed\" err=%v", subcategory.ID, f.actor.ID, err)
		f.deps.Notifier.Notify(notify.Error(f.actor.ID, "Donation not saved", "The offline donation could not be saved. Please retry."))
		return nil, fmt.Errorf("could not record offline donation: %w", err)
	}
	if !created {
		// A retried capture finds its own row; anything else owns the reference.
		if !sameOfflineCapture(*donation, candidate) {
			log.Printf("level=warn component=donation_flow subcategory=%s manager=%s transaction_ref=%s msg=\"offline reference already used\" existing=%s",
				subcategory.ID, f.actor.ID, ref, donation.ID)
			return nil, ledgerErrors.ErrDuplicateReference
		}
		return donation, nil
	}
	f.deps.Notifier.Notify(notify.Success(f.actor.ID, "Donation recorded", fmt.Sprintf("%s from %s recorded.", donation.Amount.StringFixed(2), donation.Donor.Name)))
	return donation, nil
}

func sameOfflineCapture(stored, candidate domain.Donation) bool {
	return stored.SubcategoryID == candidate.SubcategoryID &&
		stored.PaymentMethod == domain.DonationOffline &&
		stored.Amount.Equal(candidate.Amount)
}
