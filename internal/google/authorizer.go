package google

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuthURLFunc builds the consent URL for a redirect URL and state.
type AuthURLFunc func(redirectURL, state string) string

// Authorizer runs the interactive part of an authorization: it presents the
// consent URL to the user and yields the authorization code.
type Authorizer interface {
	// Authorize returns the authorization code and the redirect URL it was
	// delivered to. Cancellation of ctx aborts the flow.
	Authorize(ctx context.Context, authURL AuthURLFunc) (code, redirectURL string, err error)
}

// LoopbackAuthorizer receives the authorization code on a local HTTP server
// bound to 127.0.0.1.
type LoopbackAuthorizer struct {
	// Port to listen on; 0 picks a free port.
	Port int
	// Out receives the consent URL the user must open.
	Out io.Writer
	// OnURL, when set, is called with the consent URL (e.g. to open a browser).
	OnURL func(string)
}

// Authorize implements Authorizer.
func (a *LoopbackAuthorizer) Authorize(ctx context.Context, authURL AuthURLFunc) (string, string, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", a.Port))
	if err != nil {
		return "", "", fmt.Errorf("failed to start callback listener: %w", err)
	}

	redirectURL := fmt.Sprintf("http://%s/callback", ln.Addr().String())
	state := uuid.NewString()

	type result struct {
		code string
		err  error
	}
	done := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, req *http.Request) {
		query := req.URL.Query()
		var res result
		switch {
		case query.Get("state") != state:
			res.err = errors.New("oauth callback state does not match")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = fmt.Fprintln(w, "Invalid authorization link.")
		case query.Get("error") != "":
			res.err = fmt.Errorf("consent denied: %s", query.Get("error"))
			w.WriteHeader(http.StatusForbidden)
			_, _ = fmt.Fprintln(w, "Authorization was denied. You can close this window.")
		case query.Get("code") == "":
			res.err = errors.New("oauth callback carried no code")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = fmt.Fprintln(w, "Missing authorization code.")
		default:
			res.code = query.Get("code")
			_, _ = fmt.Fprintln(w, "All good, you can close this window!")
		}
		select {
		case done <- res:
		default:
		}
	})

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("OAuth callback server stopped", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	consentURL := authURL(redirectURL, state)
	if a.Out != nil {
		_, _ = fmt.Fprintf(a.Out, "\nGo to the following link in your browser:\n\n%s\n\n", consentURL)
	}
	if a.OnURL != nil {
		a.OnURL(consentURL)
	}

	select {
	case <-ctx.Done():
		return "", redirectURL, ctx.Err()
	case res := <-done:
		return res.code, redirectURL, res.err
	}
}

// DefaultPromptRedirectURL is the redirect used by PromptAuthorizer. Nothing
// listens there; the user copies the code from the browser's address bar.
const DefaultPromptRedirectURL = "http://localhost"

// PromptAuthorizer prints the consent URL and reads the authorization code,
// or the full redirected URL, from In.
type PromptAuthorizer struct {
	In          io.Reader
	Out         io.Writer
	RedirectURL string
}

// Authorize implements Authorizer.
func (a *PromptAuthorizer) Authorize(ctx context.Context, authURL AuthURLFunc) (string, string, error) {
	redirectURL := a.RedirectURL
	if redirectURL == "" {
		redirectURL = DefaultPromptRedirectURL
	}
	state := uuid.NewString()

	if a.Out != nil {
		_, _ = fmt.Fprintf(a.Out, "\nGo to the following link in your browser:\n\n%s\n\n", authURL(redirectURL, state))
		_, _ = fmt.Fprint(a.Out, "Paste the authorization code (or the full URL you were redirected to): ")
	}

	lines := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(a.In).ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			errs <- fmt.Errorf("failed to read authorization code: %w", err)
			return
		}
		lines <- line
	}()

	select {
	case <-ctx.Done():
		return "", redirectURL, ctx.Err()
	case err := <-errs:
		return "", redirectURL, err
	case line := <-lines:
		code, err := parsePastedCode(strings.TrimSpace(line), state)
		return code, redirectURL, err
	}
}

// parsePastedCode accepts either a bare code or a redirected URL. A URL's
// state must match.
func parsePastedCode(input, state string) (string, error) {
	if input == "" {
		return "", errors.New("no authorization code entered")
	}
	if !strings.Contains(input, "://") {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URL: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("consent denied: %s", e)
	}
	if s := q.Get("state"); s != "" && s != state {
		return "", errors.New("oauth callback state does not match")
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("redirect URL carried no code")
	}
	return code, nil
}
