package models

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genSubStatus generates a random known SubStatus.
func genSubStatus() gopter.Gen {
	return gen.OneConstOf(
		SubStatusDocumentCollection,
		SubStatusTechnicalReview,
		SubStatusLegalReview,
		SubStatusFinancialReview,
		SubStatusAwaitingSignature,
		SubStatusFinalProcessing,
	)
}

// **Property 1: Only FINAL_PROCESSING retires a renewal**
// For any stage, a renewal is active exactly when the stage is not FINAL_PROCESSING,
// regardless of its gates.
func TestRenewalActivity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("active iff not FINAL_PROCESSING", prop.ForAll(
		func(s SubStatus, docs, legal, fin, sig bool) bool {
			r := &Renewal{
				SubStatus: s,
				Gates: Gates{
					DocumentsReceived: docs,
					LegalApproved:     legal,
					FinancialApproved: fin,
					SignatureReceived: sig,
				},
			}
			return r.IsActive() == (s != SubStatusFinalProcessing)
		},
		genSubStatus(), gen.Bool(), gen.Bool(), gen.Bool(), gen.Bool(),
	))

	properties.Property("stage positions follow workflow order", prop.ForAll(
		func(s SubStatus) bool {
			pos := s.Position()
			return pos >= 0 && ValidSubStatuses()[pos] == s
		},
		genSubStatus(),
	))

	properties.Property("unknown stages are invalid", prop.ForAll(
		func(raw string) bool {
			s := SubStatus(raw)
			for _, v := range ValidSubStatuses() {
				if v == s {
					return true
				}
			}
			return !s.IsValid() && s.Position() == -1
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestSubStatusOrderIsFixed(t *testing.T) {
	all := ValidSubStatuses()
	if all[0] != InitialSubStatus {
		t.Fatalf("first stage = %s, want %s", all[0], InitialSubStatus)
	}
	if !all[len(all)-1].IsTerminal() {
		t.Fatalf("last stage %s is not terminal", all[len(all)-1])
	}

	all[0] = "MUTATED"
	if ValidSubStatuses()[0] != InitialSubStatus {
		t.Fatal("ValidSubStatuses must return a copy")
	}
}

// **Property 2: Contract date invariant**
// For any contract, Validate rejects end dates that are not after the start date.
func TestContractDateInvariant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("end must be after start", prop.ForAll(
		func(offsetDays int) bool {
			c := &Contract{
				ContractNumber: "C-1",
				Status:         ContractStatusActive,
				StartDate:      start,
				EndDate:        start.AddDate(0, 0, offsetDays),
				Party:          Party{Kind: PartyKindHumanitarianOrg, ID: "org-1"},
			}
			err := c.Validate()
			if offsetDays > 0 {
				return err == nil
			}
			return err == ErrContractDatesInvalid
		},
		gen.IntRange(-400, 400),
	))

	properties.TestingRun(t)
}

func TestOwnerHasContact(t *testing.T) {
	cases := []struct {
		owner Owner
		want  bool
	}{
		{Owner{ID: "u1", Email: "a@example.org"}, true},
		{Owner{ID: "u1"}, false},
		{Owner{Email: "a@example.org"}, false},
		{Owner{ID: " ", Email: " "}, false},
	}
	for _, tc := range cases {
		if got := tc.owner.HasContact(); got != tc.want {
			t.Errorf("HasContact(%+v) = %v, want %v", tc.owner, got, tc.want)
		}
	}
}

func TestReminderAcknowledgeKeepsFirst(t *testing.T) {
	r := &Reminder{ID: "r1"}
	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if !r.Acknowledge("alice", first) {
		t.Fatal("first acknowledgement should apply")
	}
	if r.Acknowledge("bob", first.Add(time.Hour)) {
		t.Fatal("second acknowledgement should be ignored")
	}
	if r.AcknowledgedBy != "alice" || !r.AcknowledgedAt.Equal(first) {
		t.Fatalf("acknowledgement overwritten: %+v", r)
	}
}

func TestGenerateSlug(t *testing.T) {
	cases := map[string]string{
		"Red Cross Sarajevo": "red-cross-sarajevo",
		"  UN_Habitat  ":     "un-habitat",
		"Caritas -- BiH!":    "caritas-bih",
	}
	for in, want := range cases {
		if got := GenerateSlug(in); got != want {
			t.Errorf("GenerateSlug(%q) = %q, want %q", in, got, want)
		}
	}
}
