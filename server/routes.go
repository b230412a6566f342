package server

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteLaunch+"{$}", ChainMiddleware(s.LaunchHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))

	s.RegisterRouteHandler("GET "+RoutePatient, ChainMiddleware(s.PatientHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteVitals, ChainMiddleware(s.VitalSignsHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteVitals, ChainMiddleware(s.CreateVitalSignHandler(), s.APIMiddleware()...))

	s.RegisterRouteFunc("GET "+RouteHealthz, s.HealthzHandler())
}
