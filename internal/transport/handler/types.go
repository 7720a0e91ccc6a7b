package handler

// credentialsPayload is the body of /api/register and /api/login.
type credentialsPayload struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	FirstName string `json:"first_name" validate:"omitempty,max=120"`
	LastName  string `json:"last_name" validate:"omitempty,max=120"`
}

type activatePayload struct {
	Plan string `json:"plan"`
}

// bmcPayload mirrors the Buy Me a Coffee webhook body. Supporter email may
// arrive under several keys depending on the event source.
type bmcPayload struct {
	Type string         `json:"type"`
	Data bmcPayloadData `json:"data"`

	Email          string `json:"email"`
	SupporterEmail string `json:"supporter_email"`
	PayerEmail     string `json:"payer_email"`
	SenderEmail    string `json:"sender_email"`
}

type bmcPayloadData struct {
	SupporterEmail string `json:"supporter_email"`
}

// BuyerEmail returns the first email found in the payload, preferring the
// nested data block over the top-level fallbacks.
func (p bmcPayload) BuyerEmail() string {
	for _, email := range []string{p.Data.SupporterEmail, p.SupporterEmail, p.Email, p.PayerEmail, p.SenderEmail} {
		if email != "" {
			return email
		}
	}
	return ""
}

type apiError struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Remaining *int   `json:"remaining,omitempty"`
}

type tokenResponse struct {
	Token      string `json:"token"`
	User       any    `json:"user"`
	PlanActive *bool  `json:"plan_active,omitempty"`
}
