package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jrsteele09/smart-launch/internal/errors"
	"github.com/jrsteele09/smart-launch/launch"
	"github.com/rs/zerolog/log"
)

type launchPage struct {
	AppName      string
	State        launch.State
	Message      string
	Session      *launch.Session
	Error        string
	ErrorDetails string
}

// LaunchHandler serves the redirect URI. Each request is one page load of
// the launch state machine against the browser's cookies.
func (s *Server) LaunchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.Ctx(r.Context())
		browser := s.stores.Open(r, w)

		out, err := s.machine.Run(r.Context(), browser.Store(), launch.PageLoad{Query: r.URL.Query()})
		// Cookies go out before any redirect or body.
		if saveErr := browser.Save(); saveErr != nil {
			logger.Err(saveErr).Msg("Failed to save session cookies")
			http.Error(w, "Failed to save session", http.StatusInternalServerError)
			return
		}
		if err != nil {
			logger.Err(err).Msg("Launch failed")
			http.Error(w, "Launch failed", http.StatusInternalServerError)
			return
		}

		if out.State == launch.StateRedirectingToAuthorize {
			redirector := launch.HTTPRedirector{W: w, R: r}
			if err := launch.Navigate(r.Context(), redirector, out.AuthorizationURL, s.redirectDelay); err != nil {
				logger.Err(err).Msg("Redirect to authorization server abandoned")
			}
			return
		}

		s.renderLaunchPage(w, r, out)
	}
}

func (s *Server) renderLaunchPage(w http.ResponseWriter, r *http.Request, out launch.Outcome) {
	page := launchPage{
		AppName: s.config.GetAppName(),
		State:   out.State,
		Message: statusMessage(out),
		Session: out.Session,
		Error:   out.Error,
	}
	if out.ErrorDetails != nil {
		page.ErrorDetails = formatDetails(out.ErrorDetails)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.pages.Execute(w, page); err != nil {
		log.Ctx(r.Context()).Err(err).Msg("Failed to render launch page")
	}
}

func statusMessage(out launch.Outcome) string {
	switch out.State {
	case launch.StateResolvingContext:
		return "Waiting for an EHR launch (iss and launch parameters)."
	case launch.StateDiscoveringEndpoints:
		if errors.Is(out.Reason, errors.ErrEndpointsMissing) {
			return "The EHR did not publish its authorization endpoints."
		}
		return "Discovering the EHR's authorization endpoints."
	case launch.StateAwaitingCallback:
		return "Waiting for the authorization server to redirect back."
	}
	return fmt.Sprintf("Launch in progress (%s).", out.State)
}

func formatDetails(details any) string {
	if s, ok := details.(string); ok {
		return s
	}
	b, err := json.MarshalIndent(details, "", "  ")
	if err != nil {
		return fmt.Sprint(details)
	}
	return string(b)
}

// LogoutHandler forgets the launch in both storage tiers.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		browser := s.stores.Open(r, w)
		browser.Store().Clear()
		if err := browser.Save(); err != nil {
			log.Ctx(r.Context()).Err(err).Msg("Failed to clear session cookies")
			http.Error(w, "Failed to clear session", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, RouteLaunch, http.StatusSeeOther)
	}
}
