package renewal

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/narvanalabs/contractdesk/internal/apperr"
	"github.com/narvanalabs/contractdesk/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names so messages match request bodies.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("substatus", func(fl validator.FieldLevel) bool {
		return models.SubStatus(fl.Field().String()).IsValid()
	})
	return v
}

// validateStruct runs struct-tag validation and converts failures to a
// field-level apperr validation error.
func validateStruct(s any, extra func(*apperr.Validation)) error {
	var v apperr.Validation

	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validating input: %w", err)
		}
		for _, fe := range verrs {
			v.Add(fe.Field(), "%s", describe(fe))
		}
	}
	if extra != nil {
		extra(&v)
	}
	return v.Err()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gtfield":
		return "must be after " + snake(fe.Param())
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "substatus":
		return "must be one of " + joinStatuses(models.ValidSubStatuses())
	default:
		return "is invalid"
	}
}

// snake converts a Go field name such as ProposedStartDate to proposed_start_date.
func snake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func joinStatuses(all []models.SubStatus) string {
	parts := make([]string, len(all))
	for i, s := range all {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}

// GatePolicy is an optional extra check applied to a renewal before it is saved.
type GatePolicy func(r *models.Renewal) error

// ValidateGateConsistency requires the approval gates of earlier stages before a
// renewal may sit in a later stage: documents before LEGAL_REVIEW, legal approval
// before FINANCIAL_REVIEW, financial approval before AWAITING_SIGNATURE and the
// signature before FINAL_PROCESSING.
//
// It is not applied unless the workflow is built WithGatePolicy(ValidateGateConsistency).
func ValidateGateConsistency(r *models.Renewal) error {
	pos := r.SubStatus.Position()
	required := []struct {
		from  models.SubStatus
		gate  string
		isSet bool
	}{
		{models.SubStatusLegalReview, "documents_received", r.DocumentsReceived},
		{models.SubStatusFinancialReview, "legal_approved", r.LegalApproved},
		{models.SubStatusAwaitingSignature, "financial_approved", r.FinancialApproved},
		{models.SubStatusFinalProcessing, "signature_received", r.SignatureReceived},
	}

	var v apperr.Validation
	for _, req := range required {
		if pos >= req.from.Position() && !req.isSet {
			v.Add(req.gate, "must be set before %s", req.from)
		}
	}
	return v.Err()
}
