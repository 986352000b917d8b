// Package models provides data structures for contractdesk.
package models

import (
	"errors"
	"strings"
	"time"
)

// ContractStatus is the stored, authoritative status of a contract.
type ContractStatus string

const (
	ContractStatusActive            ContractStatus = "ACTIVE"
	ContractStatusPending           ContractStatus = "PENDING"
	ContractStatusExpired           ContractStatus = "EXPIRED"
	ContractStatusRenewalInProgress ContractStatus = "RENEWAL_IN_PROGRESS"
)

// IsValid returns true if the status is a known contract status.
func (s ContractStatus) IsValid() bool {
	switch s {
	case ContractStatusActive, ContractStatusPending, ContractStatusExpired, ContractStatusRenewalInProgress:
		return true
	default:
		return false
	}
}

// PartyKind identifies which kind of counter-party a contract is held with.
type PartyKind string

const (
	PartyKindProvider        PartyKind = "provider"
	PartyKindHumanitarianOrg PartyKind = "humanitarian_org"
	PartyKindParkingService  PartyKind = "parking_service"
)

// IsValid returns true if the kind is a known party kind.
func (k PartyKind) IsValid() bool {
	switch k {
	case PartyKindProvider, PartyKindHumanitarianOrg, PartyKindParkingService:
		return true
	default:
		return false
	}
}

// Party references the single counter-party of a contract.
// A contract belongs to exactly one provider, humanitarian organization or parking
// service, so the reference is a (kind, id) pair rather than three nullable columns.
type Party struct {
	Kind PartyKind `json:"kind"`
	ID   string    `json:"id"`
}

// Owner is the user responsible for a contract and the recipient of expiry notices.
type Owner struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// HasContact reports whether the owner can be notified.
func (o Owner) HasContact() bool {
	return strings.TrimSpace(o.ID) != "" && strings.TrimSpace(o.Email) != ""
}

// Contract is a service contract with a counter-party.
type Contract struct {
	ID             string         `json:"id"`
	ContractNumber string         `json:"contract_number"`
	Status         ContractStatus `json:"status"`
	StartDate      time.Time      `json:"start_date"`
	EndDate        time.Time      `json:"end_date"`
	Owner          Owner          `json:"owner"`
	Party          Party          `json:"party"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Validation errors for contracts.
var (
	ErrContractNumberRequired = errors.New("contract number is required")
	ErrContractStatusInvalid  = errors.New("contract status is invalid")
	ErrContractDatesInvalid   = errors.New("contract end date must be after start date")
	ErrContractPartyInvalid   = errors.New("contract must reference exactly one counter-party")
)

// Validate validates the contract fields.
func (c *Contract) Validate() error {
	if strings.TrimSpace(c.ContractNumber) == "" {
		return ErrContractNumberRequired
	}
	if !c.Status.IsValid() {
		return ErrContractStatusInvalid
	}
	if !c.EndDate.After(c.StartDate) {
		return ErrContractDatesInvalid
	}
	if !c.Party.Kind.IsValid() || strings.TrimSpace(c.Party.ID) == "" {
		return ErrContractPartyInvalid
	}
	return nil
}
