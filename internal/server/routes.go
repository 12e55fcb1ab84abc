package server

import "net/http"

const (
	LoginPath    = "/github/login"
	CallbackPath = "/github/callback"
	JWKSPath     = "/.well-known/jwks.json"
	HealthPath   = "/health"
)

// NewRouter mounts every bridge endpoint. The key set is readable
// cross-origin by the allowed origins.
func NewRouter(h *AuthHandlers, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+LoginPath, h.LoginHandler)
	mux.HandleFunc("GET "+CallbackPath, h.CallbackHandler)
	mux.Handle(JWKSPath, ChainMiddleware(http.HandlerFunc(h.JWKSHandler), NewCORSMiddleware(allowedOrigins)))
	mux.Handle("GET "+HealthPath, NewHealthHandler())

	return ChainMiddleware(mux,
		NewRecoverMiddleware("auth-bridge"),
		NewLoggerMiddleware("http", LoginPath, CallbackPath),
	)
}
