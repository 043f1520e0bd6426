package oauth

import (
	"context"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/prodonik/tierlist-client/config"
	"github.com/prodonik/tierlist-client/pkg/errors"
	"github.com/prodonik/tierlist-client/pkg/logger"
)

// LoopbackAgent implements UserAgent by opening the system browser and
// catching the provider redirect on a one-shot loopback listener.
type LoopbackAgent struct {
	cfg *config.OAuthConfig
	log logger.Logger

	// openBrowser is swappable in tests.
	openBrowser func(url string) error
}

// NewLoopbackAgent creates a loopback user agent.
func NewLoopbackAgent(cfg *config.OAuthConfig, log logger.Logger) *LoopbackAgent {
	return &LoopbackAgent{
		cfg:         cfg,
		log:         log.With(logger.Component("oauth-agent")),
		openBrowser: openSystemBrowser,
	}
}

// Authorize starts the loopback listener, opens the browser at authURL,
// and suspends until the provider redirects back or ctx is cancelled.
// Cancellation (ctx done, or the user denying consent at the provider)
// returns errors.ErrOAuthCancelled.
func (a *LoopbackAgent) Authorize(ctx context.Context, authURL, redirectURI string) (*Callback, error) {
	addr := net.JoinHostPort(a.cfg.RedirectHost, strconv.Itoa(a.cfg.RedirectPort))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(errors.ErrOAuthFailed, "cannot bind loopback listener: "+err.Error())
	}

	type outcome struct {
		cb  *Callback
		err error
	}
	results := make(chan outcome, 1)

	router := chi.NewRouter()
	router.Get(a.cfg.RedirectPath, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		if errCode := query.Get("error"); errCode != "" {
			writeCallbackPage(w, "Sign-in was not completed. You can close this window.")
			if errCode == "access_denied" {
				results <- outcome{err: errors.ErrOAuthCancelled}
			} else {
				results <- outcome{err: errors.Wrap(errors.ErrOAuthFailed, errCode+": "+query.Get("error_description"))}
			}
			return
		}

		writeCallbackPage(w, "Signed in. You can close this window and return to the app.")
		results <- outcome{cb: &Callback{
			Code:  query.Get("code"),
			State: query.Get("state"),
		}}
	})

	server := &http.Server{Handler: router}
	go server.Serve(listener)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	a.log.Info("waiting for provider redirect", logger.String("redirect_uri", redirectURI))

	if err := a.openBrowser(authURL); err != nil {
		return nil, errors.Wrap(errors.ErrOAuthFailed, "cannot open browser: "+err.Error())
	}

	select {
	case result := <-results:
		return result.cb, result.err
	case <-ctx.Done():
		return nil, errors.ErrOAuthCancelled
	}
}

func writeCallbackPage(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("<html><body><p>" + message + "</p></body></html>"))
}

func openSystemBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
