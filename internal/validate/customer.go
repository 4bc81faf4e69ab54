package validate

import "time"

// CustomerInput is the raw customer form as submitted.
type CustomerInput struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Phone        string `json:"phone"`
	BirthDate    string `json:"birth_date"`
	Email        string `json:"email"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	ConsentGiven bool   `json:"consent_given"`
}

// Options controls the aggregate customer check.
type Options struct {
	// RequireConsent is set only for public self-registration.
	RequireConsent bool
	// Country is the tenant's ISO code, used for postal code patterns.
	Country string
	Now     time.Time
}

// Customer runs every field validator over in and returns all violations.
// Phone format is checked separately by the phone formatter; here it is only
// required.
func Customer(in CustomerInput, opts Options) Errors {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	errs := Errors{}
	errs.Add(Name("first_name", in.FirstName))
	errs.Add(Name("last_name", in.LastName))
	if in.Phone == "" {
		errs.Set("phone", "Phone number is required")
	}
	errs.Add(BirthDate(in.BirthDate, opts.Now))
	errs.Add(Email(in.Email))
	errs.Add(AddressLine("address_line1", in.AddressLine1))
	errs.Add(AddressLine("address_line2", in.AddressLine2))
	errs.Add(City(in.City))
	errs.Add(State(in.State))
	errs.Add(PostalCode(in.PostalCode, opts.Country))
	if opts.RequireConsent {
		errs.Add(Consent(in.ConsentGiven))
	}
	return errs
}
