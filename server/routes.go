package server

// Route paths.
const (
	RoutePublicKey    = "/session/public-key"
	RouteLogin        = "/session/login"
	RouteLoginByToken = "/session/login/by-token"
	RouteLogout       = "/session/logout"
	RouteVerify       = "/session/verify"
	RouteInvalid      = "/session/invalid"
	RouteAuthorize    = "/oauth/authorize"
	RouteScopes       = "/oauth/scopes"
	RouteGrant        = "/oauth/grant"
	RouteToken        = "/oauth/token"
	RouteUserInfo     = "/oauth/userinfo"
	RouteLoginPage    = "/login"
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RoutePublicKey, ChainMiddleware(s.PublicKeyHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteLoginByToken, ChainMiddleware(s.LoginByTokenHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteVerify, ChainMiddleware(s.VerifyHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteInvalid, ChainMiddleware(s.InvalidHandler(), s.APIMiddleware()...))

	s.RegisterRouteFunc("GET "+RouteAuthorize, ChainMiddleware(s.AuthorizeHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteScopes, ChainMiddleware(s.ScopesHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteGrant, ChainMiddleware(s.GrantHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteToken, ChainMiddleware(s.TokenHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteUserInfo, ChainMiddleware(s.UserInfoHandler(), s.APIMiddleware()...))
}
