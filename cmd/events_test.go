package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/agenda/internal/account"
	"github.com/teemow/agenda/internal/calendar"
)

// recordingLoader records the access token it was given for every page.
type recordingLoader struct {
	tokens  []string
	failAt  int
	pageErr error
}

func (l *recordingLoader) record(accounts []account.Account) {
	l.tokens = append(l.tokens, accounts[0].Token.AccessToken)
}

func (l *recordingLoader) LoadInitial(_ context.Context, accounts []account.Account) ([]calendar.Event, error) {
	l.record(accounts)
	return nil, nil
}

func (l *recordingLoader) LoadMore(_ context.Context, accounts []account.Account) (int, error) {
	l.record(accounts)
	if l.failAt > 0 && len(l.tokens) == l.failAt {
		return 0, l.pageErr
	}
	return 1, nil
}

func (l *recordingLoader) Events() []calendar.Event {
	return []calendar.Event{{ID: "e1"}}
}

func (l *recordingLoader) RangeEnd() time.Time { return time.Time{} }

func TestLoadPages(t *testing.T) {
	tests := []struct {
		name       string
		pages      int
		failAt     int
		wantTokens []string
		wantErr    string
	}{
		{
			name:       "initial only",
			wantTokens: []string{"tok-1"},
		},
		{
			name:       "every page sees the latest accounts",
			pages:      3,
			wantTokens: []string{"tok-1", "tok-2", "tok-3", "tok-4"},
		},
		{
			name:       "failing page stops loading",
			pages:      3,
			failAt:     2,
			wantTokens: []string{"tok-1", "tok-2"},
			wantErr:    "failed to load page 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Each listing returns the token a refresh in the previous page
			// would have stored.
			listed := 0
			list := func() []account.Account {
				listed++
				acc := work()
				acc.Token.AccessToken = "tok-" + string(rune('0'+listed))
				return []account.Account{acc}
			}
			loader := &recordingLoader{failAt: tt.failAt, pageErr: errors.New("backend down")}
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))

			events, err := loadPages(context.Background(), loader, list, tt.pages, logger)
			assert.Equal(t, tt.wantTokens, loader.tokens)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, events, 1)
		})
	}
}
