package aggregator

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/agenda/internal/account"
	"github.com/teemow/agenda/internal/calendar"
	"github.com/teemow/agenda/internal/instrumentation"
	"github.com/teemow/agenda/internal/logging"
)

var errRefreshFailed = errors.New("token refresh failed")

func isRefreshFailure(err error) bool {
	return errors.Is(err, errRefreshFailed)
}

// withAuthRetry runs op with the account's access token. If op fails with an
// authorization error, the account is refreshed once, the refreshed account
// is broadcast, and op is retried once with the new token. A second failure
// is returned as is.
//
// The returned account carries the token that was last used. When the
// refresh itself fails, the account is broadcast with an error status and
// the refresh error is returned.
func withAuthRetry[T any](ctx context.Context, a *Aggregator, acc account.Account, op func(ctx context.Context, token string) (T, error)) (T, account.Account, error) {
	result, err := op(ctx, acc.Token.AccessToken)
	if err == nil || !calendar.IsUnauthorized(err) {
		return result, acc, err
	}

	log := logging.WithAccount(a.logger, acc.ID).With(logging.UserHash(acc.Email))
	log.Debug("Token rejected, refreshing", logging.Err(err))

	refreshed, rerr := a.refresher.Refresh(ctx, acc.Email, acc.Token.RefreshToken)
	if rerr != nil {
		failed := acc.Clone()
		failed.Calendars = nil
		failed.Status = account.Failed(rerr.Error())
		a.broadcast(failed)

		var zero T
		return zero, acc, fmt.Errorf("%w: %w", errRefreshFailed, rerr)
	}

	next := acc.Clone()
	next.ID = refreshed.ID
	next.Email = refreshed.Email
	next.Name = refreshed.Name
	next.Picture = refreshed.Picture
	next.Token = refreshed.Token
	next.Status = account.Active()

	// Calendars stay nil so the store keeps its own, including toggles made
	// while this fetch was running.
	update := next.Clone()
	update.Calendars = nil
	a.broadcast(update)

	instrumentation.AddSpanEvent(trace.SpanFromContext(ctx), "token_refreshed",
		attribute.String(instrumentation.SpanAttrAccount, next.ID))

	result, err = op(ctx, next.Token.AccessToken)
	return result, next, err
}
