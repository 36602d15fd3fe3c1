package account

import (
	"slices"
	"time"

	"golang.org/x/oauth2"
)

// Token is a bearer token with its advisory expiry.
// The server may reject a token before Expiry; callers must treat any 401 as
// "invalid now" regardless of the cached expiry.
type Token struct {
	AccessToken string `json:"token"`
	// Expiry is the absolute expiry in epoch milliseconds.
	Expiry       int64  `json:"expiry"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// ExpiresAt returns Expiry as a time.Time, or the zero time when unset.
func (t Token) ExpiresAt() time.Time {
	if t.Expiry == 0 {
		return time.Time{}
	}
	return time.UnixMilli(t.Expiry)
}

// Expired reports whether the advisory expiry has passed at now.
func (t Token) Expired(now time.Time) bool {
	return t.Expiry != 0 && !now.Before(t.ExpiresAt())
}

// OAuth2 converts the token for use with golang.org/x/oauth2.
func (t Token) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt(),
	}
}

// TokenFromOAuth2 converts an oauth2 token. A zero expiry is kept as zero.
func TokenFromOAuth2(tok *oauth2.Token) Token {
	if tok == nil {
		return Token{}
	}
	t := Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		t.Expiry = tok.Expiry.UnixMilli()
	}
	return t
}

// State is the health of an account as shown to the user.
type State string

const (
	StateActive State = "active"
	StateError  State = "error"
)

// Status is the account state plus a message when State is StateError.
type Status struct {
	State   State  `json:"state"`
	Message string `json:"message,omitempty"`
}

// Active returns the healthy status.
func Active() Status {
	return Status{State: StateActive}
}

// Failed returns an error status carrying msg.
func Failed(msg string) Status {
	return Status{State: StateError, Message: msg}
}

// IsError reports whether the account needs an interactive reconnect.
func (s Status) IsError() bool {
	return s.State == StateError
}

// CalendarConfig is one calendar of an account and whether it is shown.
type CalendarConfig struct {
	ID              string `json:"id"`
	Summary         string `json:"summary"`
	BackgroundColor string `json:"backgroundColor"`
	Primary         bool   `json:"primary"`
	// Selected is the server-side default inclusion.
	Selected bool `json:"selected"`
	// Visible is the user override; it defaults to Selected.
	Visible bool `json:"visible"`
}

// Account is one authorized Google identity.
type Account struct {
	ID        string           `json:"id"`
	Email     string           `json:"email"`
	Name      string           `json:"name"`
	Picture   string           `json:"picture"`
	Token     Token            `json:"token"`
	Status    Status           `json:"status"`
	Calendars []CalendarConfig `json:"calendars,omitempty"`
}

// VisibleCalendars returns the calendars the user wants aggregated.
func (a Account) VisibleCalendars() []CalendarConfig {
	var out []CalendarConfig
	for _, c := range a.Calendars {
		if c.Visible {
			out = append(out, c)
		}
	}
	return out
}

// Calendar returns the calendar with the given id.
func (a Account) Calendar(id string) (CalendarConfig, bool) {
	for _, c := range a.Calendars {
		if c.ID == id {
			return c, true
		}
	}
	return CalendarConfig{}, false
}

// Equal reports whether a and b hold the same state.
func (a Account) Equal(b Account) bool {
	calsA, calsB := a.Calendars, b.Calendars
	return a.ID == b.ID && a.Email == b.Email && a.Name == b.Name &&
		a.Picture == b.Picture && a.Token == b.Token && a.Status == b.Status &&
		(calsA == nil) == (calsB == nil) && slices.Equal(calsA, calsB)
}

// Clone returns a deep copy of the account.
func (a Account) Clone() Account {
	if a.Calendars != nil {
		a.Calendars = append([]CalendarConfig(nil), a.Calendars...)
	}
	return a
}
