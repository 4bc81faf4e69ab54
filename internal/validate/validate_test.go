package validate_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kiranshivaraju/memberbase/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)

func TestName(t *testing.T) {
	assert.Nil(t, validate.Name("first_name", "Jane"))
	assert.Nil(t, validate.Name("last_name", "O'Brien-Smith"))
	assert.Nil(t, validate.Name("first_name", "  José  "))

	fe := validate.Name("first_name", " ")
	require.NotNil(t, fe)
	assert.Equal(t, "first_name", fe.Field)
	assert.Equal(t, "First name is required", fe.Message)

	assert.NotNil(t, validate.Name("first_name", "J"))
	assert.NotNil(t, validate.Name("first_name", strings.Repeat("a", 101)))
	assert.NotNil(t, validate.Name("last_name", "R2D2"))
}

func TestEmail(t *testing.T) {
	assert.Nil(t, validate.Email(""))
	assert.Nil(t, validate.Email("jane@example.com"))
	assert.NotNil(t, validate.Email("jane@localhost"))
	assert.NotNil(t, validate.Email("not-an-email"))
	assert.NotNil(t, validate.Email("a b@example.com"))
}

func TestBirthDate(t *testing.T) {
	tests := []struct {
		name  string
		value string
		ok    bool
	}{
		{"ten years ago", "2016-03-15", true},
		{"yesterday", "2026-03-14", true},
		{"exactly 150 years", "1876-03-15", true},
		{"today", "2026-03-15", false},
		{"future", "2027-01-01", false},
		{"151 years ago", "1875-03-15", false},
		{"impossible date", "2021-02-30", false},
		{"garbage", "yesterday", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := validate.BirthDate(tt.value, now)
			if tt.ok {
				assert.Nil(t, fe)
			} else {
				require.NotNil(t, fe)
				assert.Equal(t, "birth_date", fe.Field)
			}
		})
	}
}

func TestPostalCode(t *testing.T) {
	assert.Nil(t, validate.PostalCode("", "US"))
	assert.Nil(t, validate.PostalCode("94105", "US"))
	assert.NotNil(t, validate.PostalCode("9410", "US"))
	assert.Nil(t, validate.PostalCode("SW1A 1AA", "GB"))
	assert.Nil(t, validate.PostalCode("ABC-123", "XX"), "unknown country only checks length")
	assert.NotNil(t, validate.PostalCode("12", "XX"))
	assert.NotNil(t, validate.PostalCode("12345678901", "XX"))
}

func TestOptionalFields(t *testing.T) {
	assert.Nil(t, validate.AddressLine("address_line1", "1 Main St"))
	assert.NotNil(t, validate.AddressLine("address_line1", strings.Repeat("x", 201)))
	assert.Nil(t, validate.City("St. John's"))
	assert.NotNil(t, validate.City("City 17"))
	assert.Nil(t, validate.State("CA"))
	assert.NotNil(t, validate.State(strings.Repeat("x", 101)))
}

func TestConsent(t *testing.T) {
	assert.Nil(t, validate.Consent(true))
	assert.NotNil(t, validate.Consent(false))
}

func TestCustomer_CollectsEveryViolation(t *testing.T) {
	errs := validate.Customer(validate.CustomerInput{
		FirstName:  "J",
		BirthDate:  "2026-03-15",
		Email:      "bad",
		PostalCode: "1",
	}, validate.Options{RequireConsent: true, Country: "US", Now: now})

	for _, field := range []string{"first_name", "last_name", "phone", "birth_date", "email", "postal_code", "consent_given"} {
		assert.Contains(t, errs, field)
	}
	assert.Error(t, errs.Err())
}

func TestCustomer_ConsentOnlyOnPublicPath(t *testing.T) {
	in := validate.CustomerInput{
		FirstName: "Jane",
		LastName:  "Doe",
		Phone:     "(555) 123-4567",
		BirthDate: "1990-05-01",
	}
	assert.Empty(t, validate.Customer(in, validate.Options{Country: "US", Now: now}))

	errs := validate.Customer(in, validate.Options{RequireConsent: true, Country: "US", Now: now})
	assert.Equal(t, []string{"You must agree to receive communications to register"}, errs["consent_given"])
}

func TestErrors_AsError(t *testing.T) {
	var err error = validate.Single("phone", "taken")
	var target validate.Errors
	require.True(t, errors.As(err, &target))
	assert.Equal(t, []string{"taken"}, target["phone"])
	assert.Nil(t, validate.Errors{}.Err())
}

func TestStruct(t *testing.T) {
	type invite struct {
		Email string `json:"email" validate:"required,email"`
		Role  string `json:"role" validate:"omitempty,oneof=admin manager viewer"`
	}
	errs := validate.Struct(invite{Email: "nope", Role: "owner"})
	assert.Equal(t, []string{"must be a valid email address"}, errs["email"])
	assert.Equal(t, []string{"must be one of: admin, manager, viewer"}, errs["role"])

	assert.Empty(t, validate.Struct(invite{Email: "a@b.co"}))
}
