package server

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/smart-launch/internal/config"
	"github.com/jrsteele09/smart-launch/launch"
	"github.com/jrsteele09/smart-launch/sessions/cookiestore"
	"github.com/rs/zerolog/log"
)

// Server is the page host for the launch: the redirect URI and the pages
// that use the resulting session.
type Server struct {
	env           string // Environment (e.g., "DEV", "PROD")
	mux           *http.ServeMux
	routes        []string
	config        config.Config
	machine       *launch.Machine
	stores        *cookiestore.Stores
	pages         *template.Template
	httpClient    *http.Client
	redirectDelay time.Duration
	nowTime       func() time.Time
}

// ServerOption defines a function type to modify the Server instance.
type ServerOption func(*Server)

// WithHTTPClient sets the client used for FHIR calls.
func WithHTTPClient(client *http.Client) ServerOption {
	return func(s *Server) {
		s.httpClient = client
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServerOption {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

func New(c config.Config, machine *launch.Machine, stores *cookiestore.Stores, options ...ServerOption) (*Server, error) {
	if c == nil {
		return nil, errors.New("[Server New] config is required")
	}
	if machine == nil {
		return nil, errors.New("[Server New] launch machine is required")
	}
	if stores == nil {
		return nil, errors.New("[Server New] session stores are required")
	}

	pages, err := ParseTemplate(launchPageTemplate)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to parse templates: %w", err)
	}

	s := &Server{
		env:           c.GetEnv(),
		mux:           http.NewServeMux(),
		config:        c,
		machine:       machine,
		stores:        stores,
		pages:         pages,
		httpClient:    http.DefaultClient,
		redirectDelay: c.GetRedirectDelay(),
		nowTime:       time.Now,
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = gray
	}
	log.Debug().Msgf("[%s] %s", color+paddedMethod+resetColor, path)
}
