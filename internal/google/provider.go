package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/teemow/agenda/internal/account"
	"github.com/teemow/agenda/internal/instrumentation"
	"github.com/teemow/agenda/internal/logging"
)

// Profile is the identity returned by the userinfo endpoint.
type Profile struct {
	ID      string
	Email   string
	Name    string
	Picture string
}

// Provider is the credential provider. It is safe for concurrent use.
type Provider struct {
	config           Config
	authorizer       Authorizer
	httpClient       *http.Client
	userinfoEndpoint string
	metrics          *instrumentation.Metrics
	logger           *slog.Logger
	now              func() time.Time
}

// Option configures a Provider.
type Option func(*Provider)

// WithAuthorizer sets the interactive authorizer used by Login and Reconnect.
func WithAuthorizer(a Authorizer) Option {
	return func(p *Provider) { p.authorizer = a }
}

// WithHTTPClient sets the base HTTP client for token and userinfo calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithUserinfoEndpoint overrides the userinfo API base URL (tests).
func WithUserinfoEndpoint(endpoint string) Option {
	return func(p *Provider) { p.userinfoEndpoint = endpoint }
}

// WithMetrics records OAuth and Google API metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(p *Provider) { p.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// NewProvider creates a credential provider for the given OAuth client.
func NewProvider(config Config, opts ...Option) *Provider {
	p := &Provider{
		config: config,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Login runs an interactive authorization and returns a fully populated
// account with no calendars and an active status.
func (p *Provider) Login(ctx context.Context) (account.Account, error) {
	acc, err := p.login(ctx, "")
	p.metrics.RecordOAuthAuth(ctx, oauthResult(err))
	return acc, err
}

// Reconnect runs an interactive authorization hinted at existing.Email and
// splices the new credentials into existing. The calendars are kept and the
// status is reset to active. Signing in as a different user fails with
// ErrAuthMismatch.
func (p *Provider) Reconnect(ctx context.Context, existing account.Account) (account.Account, error) {
	fresh, err := p.login(ctx, existing.Email)
	if err == nil && !sameEmail(fresh.Email, existing.Email) {
		err = &MismatchError{Expected: existing.Email, Got: fresh.Email}
	}
	p.metrics.RecordOAuthAuth(ctx, oauthResult(err))
	if err != nil {
		return account.Account{}, err
	}

	out := existing.Clone()
	out.ID = fresh.ID
	out.Email = fresh.Email
	out.Name = fresh.Name
	out.Picture = fresh.Picture
	out.Token = fresh.Token
	out.Status = account.Active()
	return out, nil
}

// Refresh exchanges the stored refresh token for a new access token without
// user interaction and re-verifies the identity.
//
// The returned account carries no calendars (nil), so an account store merge
// keeps the stored ones. If the token response has no new refresh token the
// given one is kept.
func (p *Provider) Refresh(ctx context.Context, email, refreshToken string) (account.Account, error) {
	acc, err := p.refresh(ctx, email, refreshToken)
	p.metrics.RecordOAuthTokenRefresh(ctx, oauthResult(err), email)

	log := p.logger.With(logging.UserHash(email))
	if err != nil {
		log.Warn("Token refresh failed", logging.Err(err))
	} else {
		log.Debug("Token refreshed",
			"access_token", logging.SanitizeToken(acc.Token.AccessToken),
			"expires_at", acc.Token.ExpiresAt())
	}
	return acc, err
}

func (p *Provider) refresh(ctx context.Context, email, refreshToken string) (account.Account, error) {
	if refreshToken == "" {
		return account.Account{}, authError(email, OpRefresh, errors.New("no refresh token available"))
	}

	ctx = p.clientContext(ctx)
	conf := p.config.oauthConfig("")
	// An already-expired token forces the token source to refresh.
	src := conf.TokenSource(ctx, &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Unix(1, 0),
	})

	start := p.now()
	tok, err := src.Token()
	p.recordAPI(ctx, instrumentation.OperationToken, err, p.now().Sub(start))
	if err != nil {
		return account.Account{}, authError(email, OpRefresh, err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}

	profile, err := p.profile(ctx, tok)
	if err != nil {
		return account.Account{}, authError(email, OpUserinfo, err)
	}
	if !sameEmail(profile.Email, email) {
		return account.Account{}, &MismatchError{Expected: email, Got: profile.Email}
	}

	return accountFrom(profile, tok), nil
}

func (p *Provider) login(ctx context.Context, loginHint string) (account.Account, error) {
	if p.authorizer == nil {
		return account.Account{}, authError(loginHint, OpAuthorize, errors.New("no interactive authorizer configured"))
	}

	code, redirectURL, err := p.authorizer.Authorize(ctx, func(redirectURL, state string) string {
		return p.config.authCodeURL(redirectURL, state, loginHint)
	})
	if err != nil {
		return account.Account{}, authError(loginHint, OpAuthorize, err)
	}

	ctx = p.clientContext(ctx)
	start := p.now()
	tok, err := p.config.oauthConfig(redirectURL).Exchange(ctx, code)
	p.recordAPI(ctx, instrumentation.OperationToken, err, p.now().Sub(start))
	if err != nil {
		return account.Account{}, authError(loginHint, OpExchange, err)
	}
	if tok.RefreshToken == "" {
		p.logger.Warn("Authorization returned no refresh token; silent refresh will not work")
	}

	profile, err := p.profile(ctx, tok)
	if err != nil {
		return account.Account{}, authError(loginHint, OpUserinfo, err)
	}

	p.logger.Info("Authorized account", logging.UserHash(profile.Email), logging.Domain(profile.Email))
	return accountFrom(profile, tok), nil
}

// profile fetches the identity for tok from the userinfo API.
func (p *Provider) profile(ctx context.Context, tok *oauth2.Token) (Profile, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceOAuth, instrumentation.OperationUserinfo)
	defer span.End()

	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))),
	}
	if p.userinfoEndpoint != "" {
		opts = append(opts, option.WithEndpoint(p.userinfoEndpoint))
	}

	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to create userinfo service: %w", err)
	}

	start := p.now()
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	p.recordAPI(ctx, instrumentation.OperationUserinfo, err, p.now().Sub(start))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return Profile{}, fmt.Errorf("failed to fetch user profile: %w", err)
	}
	if info.Email == "" {
		err := errors.New("user profile has no email")
		instrumentation.SetSpanError(span, err)
		return Profile{}, err
	}

	instrumentation.SetSpanSuccess(span)
	return Profile{
		ID:      info.Id,
		Email:   info.Email,
		Name:    info.Name,
		Picture: info.Picture,
	}, nil
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func (p *Provider) recordAPI(ctx context.Context, operation string, err error, d time.Duration) {
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	p.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, operation, status, d)
}

func accountFrom(profile Profile, tok *oauth2.Token) account.Account {
	id := profile.ID
	if id == "" {
		id = profile.Email
	}
	return account.Account{
		ID:      id,
		Email:   profile.Email,
		Name:    profile.Name,
		Picture: profile.Picture,
		Token:   account.TokenFromOAuth2(tok),
		Status:  account.Active(),
	}
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func oauthResult(err error) string {
	switch {
	case err == nil:
		return instrumentation.OAuthResultSuccess
	case errors.Is(err, ErrAuthMismatch):
		return instrumentation.OAuthResultMismatch
	default:
		return instrumentation.OAuthResultFailure
	}
}
