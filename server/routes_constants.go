package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// RouteLaunch is the registered redirect URI: the EHR launch and the
	// authorization callback both land here.
	RouteLaunch = "/"

	// Session consumer routes
	RoutePatient = "/patient"
	RouteVitals  = "/vitals"
	RouteLogout  = "/logout"

	RouteHealthz = "/healthz"
)
