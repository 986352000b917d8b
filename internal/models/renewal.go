package models

import "time"

// SubStatus is the approval stage of a renewal.
type SubStatus string

const (
	SubStatusDocumentCollection SubStatus = "DOCUMENT_COLLECTION"
	SubStatusTechnicalReview    SubStatus = "TECHNICAL_REVIEW"
	SubStatusLegalReview        SubStatus = "LEGAL_REVIEW"
	SubStatusFinancialReview    SubStatus = "FINANCIAL_REVIEW"
	SubStatusAwaitingSignature  SubStatus = "AWAITING_SIGNATURE"
	// SubStatusFinalProcessing is terminal. A renewal in this stage no longer counts
	// as the contract's active renewal but is kept for history.
	SubStatusFinalProcessing SubStatus = "FINAL_PROCESSING"
)

// subStatusOrder lists the stages in workflow order.
var subStatusOrder = []SubStatus{
	SubStatusDocumentCollection,
	SubStatusTechnicalReview,
	SubStatusLegalReview,
	SubStatusFinancialReview,
	SubStatusAwaitingSignature,
	SubStatusFinalProcessing,
}

// InitialSubStatus is the stage every new renewal starts in.
const InitialSubStatus = SubStatusDocumentCollection

// ValidSubStatuses returns all stages in workflow order.
func ValidSubStatuses() []SubStatus {
	out := make([]SubStatus, len(subStatusOrder))
	copy(out, subStatusOrder)
	return out
}

// IsValid returns true if the stage is a known stage.
func (s SubStatus) IsValid() bool {
	return s.Position() >= 0
}

// IsTerminal returns true for FINAL_PROCESSING.
func (s SubStatus) IsTerminal() bool {
	return s == SubStatusFinalProcessing
}

// Position returns the zero-based order of the stage, or -1 when unknown.
func (s SubStatus) Position() int {
	for i, v := range subStatusOrder {
		if v == s {
			return i
		}
	}
	return -1
}

// String returns the string representation of the stage.
func (s SubStatus) String() string {
	return string(s)
}

// Gates are the four independent approval flags of a renewal.
// They are not coupled to SubStatus.
type Gates struct {
	DocumentsReceived bool `json:"documents_received"`
	LegalApproved     bool `json:"legal_approved"`
	FinancialApproved bool `json:"financial_approved"`
	SignatureReceived bool `json:"signature_received"`
}

// Renewal tracks a contract's path toward being extended or replaced.
type Renewal struct {
	ID                string    `json:"id"`
	ContractID        string    `json:"contract_id"`
	OrgID             string    `json:"org_id"`
	SubStatus         SubStatus `json:"sub_status"`
	ProposedStartDate time.Time `json:"proposed_start_date"`
	ProposedEndDate   time.Time `json:"proposed_end_date"`
	ProposedRevenue   float64   `json:"proposed_revenue"`
	Gates
	Notes          string    `json:"notes,omitempty"`
	CreatedBy      string    `json:"created_by"`
	LastModifiedBy string    `json:"last_modified_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsActive reports whether the renewal counts toward the single-active-renewal rule.
func (r *Renewal) IsActive() bool {
	return !r.SubStatus.IsTerminal()
}

// RenewalView is a renewal with its contract and organization expanded for display.
type RenewalView struct {
	*Renewal
	Contract     *Contract     `json:"contract,omitempty"`
	Organization *Organization `json:"organization,omitempty"`
}
