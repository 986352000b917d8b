// Package renewal implements the renewal workflow: creating a renewal for an
// expiring contract, moving it through its approval stages and recording every
// change in the audit log.
//
// At most one renewal per contract may be outside FINAL_PROCESSING. The workflow
// checks this before writing, and the store's atomic CreateIfNoActive is what
// guarantees it under concurrent callers.
package renewal

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/narvanalabs/contractdesk/internal/apperr"
	"github.com/narvanalabs/contractdesk/internal/audit"
	"github.com/narvanalabs/contractdesk/internal/lifecycle"
	"github.com/narvanalabs/contractdesk/internal/models"
	"github.com/narvanalabs/contractdesk/internal/store"
)

// ErrFinalizeNotImplemented is returned by Finalize. Converting a finished renewal
// into an updated contract is not built yet.
var ErrFinalizeNotImplemented = errors.New("renewal finalization is not implemented")

// Proposal is the input for creating a renewal.
type Proposal struct {
	ProposedStartDate time.Time `json:"proposed_start_date" validate:"required"`
	ProposedEndDate   time.Time `json:"proposed_end_date" validate:"required,gtfield=ProposedStartDate"`
	ProposedRevenue   float64   `json:"proposed_revenue" validate:"gte=0"`
	DocumentsReceived bool      `json:"documents_received"`
	LegalApproved     bool      `json:"legal_approved"`
	FinancialApproved bool      `json:"financial_approved"`
	SignatureReceived bool      `json:"signature_received"`
	Notes             string    `json:"notes" validate:"max=4000"`
}

// Patch is the input for updating a renewal. Nil fields are left unchanged.
// The contract and organization of a renewal are fixed at creation and have no
// field here.
type Patch struct {
	ProposedStartDate *time.Time        `json:"proposed_start_date"`
	ProposedEndDate   *time.Time        `json:"proposed_end_date"`
	ProposedRevenue   *float64          `json:"proposed_revenue" validate:"omitempty,gte=0"`
	SubStatus         *models.SubStatus `json:"sub_status" validate:"omitempty,substatus"`
	DocumentsReceived *bool             `json:"documents_received"`
	LegalApproved     *bool             `json:"legal_approved"`
	FinancialApproved *bool             `json:"financial_approved"`
	SignatureReceived *bool             `json:"signature_received"`
	Notes             *string           `json:"notes" validate:"omitempty,max=4000"`
}

// Workflow creates and updates renewals.
type Workflow struct {
	store     store.Store
	audit     audit.Port
	logger    *slog.Logger
	clock     lifecycle.Clock
	partyKind models.PartyKind
	policy    GatePolicy
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithClock sets the clock used for audit timestamps.
func WithClock(c lifecycle.Clock) Option {
	return func(w *Workflow) { w.clock = c }
}

// WithPartyKind sets the contract category renewals may be created for.
// The default is humanitarian_org.
func WithPartyKind(k models.PartyKind) Option {
	return func(w *Workflow) { w.partyKind = k }
}

// WithGatePolicy applies p to every renewal before it is saved.
func WithGatePolicy(p GatePolicy) Option {
	return func(w *Workflow) { w.policy = p }
}

// NewWorkflow creates a renewal workflow.
func NewWorkflow(st store.Store, auditor audit.Port, logger *slog.Logger, opts ...Option) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Workflow{
		store:     st,
		audit:     auditor,
		logger:    logger.With("component", "renewal"),
		clock:     lifecycle.SystemClock,
		partyKind: models.PartyKindHumanitarianOrg,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Create starts a renewal for contractID on behalf of orgID.
//
// Fails with a validation error for a malformed proposal, not found when the
// contract does not exist or does not belong to orgID under the configured
// category, and conflict when the contract already has an active renewal.
func (w *Workflow) Create(ctx context.Context, actorID, contractID, orgID string, p Proposal) (*models.RenewalView, error) {
	if actorID == "" {
		return nil, apperr.Unauthorized("actor is required")
	}
	if err := validateStruct(&p, func(v *apperr.Validation) {
		if contractID == "" {
			v.Add("contract_id", "is required")
		}
		if orgID == "" {
			v.Add("org_id", "is required")
		}
	}); err != nil {
		return nil, err
	}

	contract, err := w.store.Contracts().Get(ctx, contractID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("contract not found")
		}
		return nil, w.dataAccess(ctx, "loading contract", err)
	}
	if contract.Party.Kind != w.partyKind || contract.Party.ID != orgID {
		w.logger.InfoContext(ctx, "contract does not belong to organization",
			"contract_id", contractID,
			"org_id", orgID,
			"party_kind", contract.Party.Kind,
		)
		return nil, apperr.NotFound("contract not found")
	}

	if existing, err := w.store.Renewals().GetActiveByContract(ctx, contractID); err == nil {
		return nil, conflict(existing.ID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, w.dataAccess(ctx, "checking active renewal", err)
	}

	r := &models.Renewal{
		ContractID:        contractID,
		OrgID:             orgID,
		SubStatus:         models.InitialSubStatus,
		ProposedStartDate: p.ProposedStartDate,
		ProposedEndDate:   p.ProposedEndDate,
		ProposedRevenue:   p.ProposedRevenue,
		Gates: models.Gates{
			DocumentsReceived: p.DocumentsReceived,
			LegalApproved:     p.LegalApproved,
			FinancialApproved: p.FinancialApproved,
			SignatureReceived: p.SignatureReceived,
		},
		Notes:          p.Notes,
		CreatedBy:      actorID,
		LastModifiedBy: actorID,
	}
	if w.policy != nil {
		if err := w.policy(r); err != nil {
			return nil, err
		}
	}

	if err := w.store.Renewals().CreateIfNoActive(ctx, r); err != nil {
		if errors.Is(err, store.ErrActiveRenewalExists) {
			// Lost a race with a concurrent create.
			return nil, conflict("")
		}
		return nil, w.dataAccess(ctx, "creating renewal", err)
	}

	w.logger.InfoContext(ctx, "renewal created",
		"renewal_id", r.ID,
		"contract_id", contractID,
		"org_id", orgID,
		"actor_id", actorID,
	)

	w.emit(ctx, audit.Entry{
		Action:     models.AuditActionRenewalCreated,
		EntityType: models.EntityRenewal,
		EntityID:   r.ID,
		Details: map[string]any{
			"contract_id": contractID,
			"org_id":      orgID,
			"sub_status":  string(r.SubStatus),
		},
		Severity: models.SeverityInfo,
		ActorID:  actorID,
	})

	return w.expand(ctx, r, contract), nil
}

// Update applies patch to a renewal.
//
// A renewal in FINAL_PROCESSING cannot be moved back to an earlier stage.
// Gates and stage are otherwise independent unless a gate policy is configured.
// The renewal is read and written in one transaction, so concurrent patches apply
// one after the other and the audit entry names the stage each one started from.
func (w *Workflow) Update(ctx context.Context, actorID, renewalID string, patch Patch) (*models.RenewalView, error) {
	if actorID == "" {
		return nil, apperr.Unauthorized("actor is required")
	}
	if err := validateStruct(&patch, nil); err != nil {
		return nil, err
	}

	var (
		r        *models.Renewal
		previous models.SubStatus
		changed  []string
	)
	err := w.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		r, err = tx.Renewals().GetForUpdate(ctx, renewalID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("renewal not found")
			}
			return w.dataAccess(ctx, "loading renewal", err)
		}

		previous = r.SubStatus
		changed = apply(r, patch)

		var v apperr.Validation
		if !r.ProposedEndDate.After(r.ProposedStartDate) {
			v.Add("proposed_end_date", "must be after proposed_start_date")
		}
		if previous.IsTerminal() && !r.SubStatus.IsTerminal() {
			v.Add("sub_status", "a renewal in %s cannot be reopened", models.SubStatusFinalProcessing)
		}
		if err := v.Err(); err != nil {
			return err
		}
		if w.policy != nil {
			if err := w.policy(r); err != nil {
				return err
			}
		}

		r.LastModifiedBy = actorID
		if err := tx.Renewals().Update(ctx, r); err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				return apperr.NotFound("renewal not found")
			case errors.Is(err, store.ErrActiveRenewalExists):
				return conflict("")
			}
			return w.dataAccess(ctx, "updating renewal", err)
		}
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == "" {
			return nil, w.dataAccess(ctx, "updating renewal", err)
		}
		return nil, err
	}

	entry := audit.Entry{
		EntityType: models.EntityRenewal,
		EntityID:   r.ID,
		Severity:   models.SeverityInfo,
		ActorID:    actorID,
	}
	if r.SubStatus != previous {
		entry.Action = models.AuditActionRenewalStatusChanged
		entry.Details = map[string]any{
			"contract_id":         r.ContractID,
			"previous_sub_status": string(previous),
			"new_sub_status":      string(r.SubStatus),
		}
		w.logger.InfoContext(ctx, "renewal stage changed",
			"renewal_id", r.ID,
			"from", previous,
			"to", r.SubStatus,
			"actor_id", actorID,
		)
	} else {
		entry.Action = models.AuditActionRenewalUpdated
		entry.Details = map[string]any{
			"contract_id": r.ContractID,
			"fields":      changed,
		}
	}
	w.emit(ctx, entry)

	return w.expand(ctx, r, nil), nil
}

// Get returns a renewal with its contract and organization.
func (w *Workflow) Get(ctx context.Context, renewalID string) (*models.RenewalView, error) {
	r, err := w.store.Renewals().Get(ctx, renewalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("renewal not found")
		}
		return nil, w.dataAccess(ctx, "loading renewal", err)
	}
	return w.expand(ctx, r, nil), nil
}

// ListByContract returns the renewals of a contract, newest first.
func (w *Workflow) ListByContract(ctx context.Context, contractID string, filter store.RenewalFilter) ([]*models.Renewal, error) {
	for _, st := range filter.SubStatuses {
		if !st.IsValid() {
			return nil, apperr.Invalid("sub_status", "must be one of %s", joinStatuses(models.ValidSubStatuses()))
		}
	}
	if _, err := w.store.Contracts().Get(ctx, contractID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("contract not found")
		}
		return nil, w.dataAccess(ctx, "loading contract", err)
	}

	renewals, err := w.store.Renewals().ListByContract(ctx, contractID, filter)
	if err != nil {
		return nil, w.dataAccess(ctx, "listing renewals", err)
	}
	if renewals == nil {
		renewals = []*models.Renewal{}
	}
	return renewals, nil
}

// Finalize is reserved for turning a finished renewal into an updated contract.
// It checks that the renewal exists, changes nothing, and returns
// ErrFinalizeNotImplemented.
func (w *Workflow) Finalize(ctx context.Context, actorID, renewalID string) error {
	if _, err := w.store.Renewals().Get(ctx, renewalID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("renewal not found")
		}
		return w.dataAccess(ctx, "loading renewal", err)
	}
	w.logger.WarnContext(ctx, "renewal finalization requested but not implemented",
		"renewal_id", renewalID,
		"actor_id", actorID,
	)
	return ErrFinalizeNotImplemented
}

// apply copies the set fields of patch onto r and returns the names of the
// fields whose values changed.
func apply(r *models.Renewal, p Patch) []string {
	var changed []string
	setTime := func(name string, dst *time.Time, src *time.Time) {
		if src != nil && !dst.Equal(*src) {
			*dst = *src
			changed = append(changed, name)
		}
	}
	setBool := func(name string, dst *bool, src *bool) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = append(changed, name)
		}
	}

	setTime("proposed_start_date", &r.ProposedStartDate, p.ProposedStartDate)
	setTime("proposed_end_date", &r.ProposedEndDate, p.ProposedEndDate)
	if p.ProposedRevenue != nil && r.ProposedRevenue != *p.ProposedRevenue {
		r.ProposedRevenue = *p.ProposedRevenue
		changed = append(changed, "proposed_revenue")
	}
	if p.SubStatus != nil && r.SubStatus != *p.SubStatus {
		r.SubStatus = *p.SubStatus
		changed = append(changed, "sub_status")
	}
	setBool("documents_received", &r.DocumentsReceived, p.DocumentsReceived)
	setBool("legal_approved", &r.LegalApproved, p.LegalApproved)
	setBool("financial_approved", &r.FinancialApproved, p.FinancialApproved)
	setBool("signature_received", &r.SignatureReceived, p.SignatureReceived)
	if p.Notes != nil && r.Notes != *p.Notes {
		r.Notes = *p.Notes
		changed = append(changed, "notes")
	}
	if changed == nil {
		changed = []string{}
	}
	return changed
}

// expand attaches the renewal's contract and organization. Lookups are best
// effort: the renewal has already been saved, so a failed lookup only leaves the
// relation empty.
func (w *Workflow) expand(ctx context.Context, r *models.Renewal, contract *models.Contract) *models.RenewalView {
	view := &models.RenewalView{Renewal: r, Contract: contract}

	if view.Contract == nil {
		c, err := w.store.Contracts().Get(ctx, r.ContractID)
		if err != nil {
			w.logger.WarnContext(ctx, "failed to load renewal contract", "renewal_id", r.ID, "error", err)
		} else {
			view.Contract = c
		}
	}

	org, err := w.store.Orgs().Get(ctx, r.OrgID)
	if err != nil {
		w.logger.WarnContext(ctx, "failed to load renewal organization", "renewal_id", r.ID, "error", err)
	} else {
		view.Organization = org
	}
	return view
}

// emit appends an audit entry. Failures are logged and never returned.
func (w *Workflow) emit(ctx context.Context, e audit.Entry) {
	if w.audit == nil {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = w.clock().UTC()
	}
	if err := w.audit.Append(ctx, e); err != nil {
		w.logger.ErrorContext(ctx, "failed to append audit entry",
			"action", e.Action,
			"entity_id", e.EntityID,
			"error", apperr.Audit(err),
		)
	}
}

func (w *Workflow) dataAccess(ctx context.Context, op string, err error) error {
	w.logger.ErrorContext(ctx, "renewal data access failed", "operation", op, "error", err)
	return apperr.DataAccess(op, err)
}

func conflict(existingID string) error {
	e := apperr.Conflict("an active renewal already exists for this contract")
	if existingID != "" {
		e.Fields = map[string]string{"active_renewal_id": existingID}
	}
	return e
}
