package accounts

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/brodesk/brodesk/internal/shared"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\d{10}$`)
)

// NewValidator returns a validator with the BroDesk registration tags.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("brodesk_email", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phone10", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}

var fieldMessages = map[string]struct {
	field   string
	message string
}{
	"Role":            {"role", "Role must be student or staff"},
	"FullName":        {"full_name", "Name is required"},
	"Phone":           {"phone", "Phone number must be exactly 10 digits"},
	"Password":        {"password", "Password must be at least 6 characters"},
	"ConfirmPassword": {"confirm_password", "Passwords do not match"},
	"BatchNumber":     {"batch_number", "Batch number is required for students"},
	"Course":          {"course", "Course is required for students"},
	"Category":        {"category", "Category is required for staff"},
	"Email":           {"email", "Please enter a valid email address"},
}

func normaliseRegistration(in RegisterInput) RegisterInput {
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.BatchType = strings.TrimSpace(in.BatchType)
	in.BatchNumber = strings.TrimSpace(in.BatchNumber)
	in.Course = strings.TrimSpace(in.Course)
	in.StudentID = strings.TrimSpace(in.StudentID)
	in.Category = strings.TrimSpace(in.Category)
	in.Specialization = strings.TrimSpace(in.Specialization)
	return in
}

func validateRegistration(v *validator.Validate, in RegisterInput) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return shared.NewValidationError("body", err.Error())
	}
	first := fieldErrs[0]
	if first.StructField() == "BatchType" {
		if first.Tag() == "oneof" {
			return shared.NewValidationError("batch_type", "Batch type must be Remote or Offline")
		}
		return shared.NewValidationError("batch_type", "Batch type is required for students")
	}
	if msg, ok := fieldMessages[first.StructField()]; ok {
		return shared.NewValidationError(msg.field, msg.message)
	}
	return shared.NewValidationError(strings.ToLower(first.Field()), first.Error())
}
