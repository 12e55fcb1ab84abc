package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dgellow/auth-bridge/internal/authstate"
	"github.com/dgellow/auth-bridge/internal/autherr"
	"github.com/dgellow/auth-bridge/internal/credential"
	"github.com/dgellow/auth-bridge/internal/githubauth"
	jsonwriter "github.com/dgellow/auth-bridge/internal/json"
	"github.com/dgellow/auth-bridge/internal/log"
)

// GitHub is the upstream side of the login.
type GitHub interface {
	AuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchProfile(ctx context.Context, accessToken string) (githubauth.Profile, error)
}

// CredentialIssuer signs the credential handed to the origin.
type CredentialIssuer interface {
	Issue(state authstate.AuthState, profile githubauth.Profile, now time.Time) (string, error)
}

// callbackStage is how far a callback got before it finished.
type callbackStage string

const (
	stageAwaitingCode     callbackStage = "awaiting_code"
	stageCodeReceived     callbackStage = "code_received"
	stageStateVerified    callbackStage = "state_verified"
	stageOriginAllowed    callbackStage = "origin_allowed"
	stageTokenExchanged   callbackStage = "token_exchanged"
	stageProfileFetched   callbackStage = "profile_fetched"
	stageCredentialIssued callbackStage = "credential_issued"
	stageRedirected       callbackStage = "redirected"
)

// stateRejected is the only message shown for bad signature, expiry and
// disallowed origin alike.
const stateRejected = "Invalid or expired login state"

// AuthHandlers serves the login and callback endpoints.
type AuthHandlers struct {
	github         GitHub
	issuer         CredentialIssuer
	keys           *credential.KeySet
	stateSecret    []byte
	allowedOrigins []string
	defaultExpire  int64
	now            func() time.Time
}

// AuthHandlersConfig carries the dependencies of AuthHandlers.
type AuthHandlersConfig struct {
	GitHub         GitHub
	Issuer         CredentialIssuer
	Keys           *credential.KeySet
	StateSecret    []byte
	AllowedOrigins []string
	DefaultExpire  time.Duration
	// Now defaults to time.Now
	Now func() time.Time
}

// NewAuthHandlers creates the auth handlers
func NewAuthHandlers(cfg AuthHandlersConfig) *AuthHandlers {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AuthHandlers{
		github:         cfg.GitHub,
		issuer:         cfg.Issuer,
		keys:           cfg.Keys,
		stateSecret:    cfg.StateSecret,
		allowedOrigins: cfg.AllowedOrigins,
		defaultExpire:  int64(cfg.DefaultExpire / time.Second),
		now:            now,
	}
}

// LoginHandler validates the login request, seals it into the state and
// sends the browser to GitHub.
func (h *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	params := authstate.ParamsFromQuery(r.URL.Query())

	state, err := authstate.New(params, h.defaultExpire, h.now())
	if err != nil {
		log.LogInfoWithFields("auth", "Login rejected", map[string]any{
			"error": err.Error(),
		})
		writeAuthError(w, err)
		return
	}

	sealed, err := authstate.Encode(state, h.stateSecret)
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to seal login state", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to start login")
		return
	}

	log.LogDebugWithFields("auth", "Redirecting to GitHub", map[string]any{
		"origin": state.Origin,
		"app":    state.App,
	})

	http.Redirect(w, r, h.github.AuthURL(sealed), http.StatusFound)
}

// CallbackHandler completes the login. Until the state is verified and its
// origin allowed, failures are answered directly. After that every failure
// is redirected to the origin's error path.
func (h *AuthHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	stage := stageAwaitingCode

	sealed := q.Get("state")
	code := q.Get("code")
	providerError := q.Get("error")

	if sealed == "" || (code == "" && providerError == "") {
		h.reject(w, stage, autherr.Validation("Missing code or state"))
		return
	}
	stage = stageCodeReceived

	now := h.now()
	state, err := authstate.Decode(sealed, h.stateSecret)
	if err == nil {
		err = state.Validate()
	}
	if err != nil {
		h.reject(w, stage, autherr.StateVerification(stateRejected, err))
		return
	}
	if state.IsExpired(now) {
		h.reject(w, stage, autherr.StateVerification(stateRejected, nil))
		return
	}
	stage = stageStateVerified

	if !state.IsAllowedOrigin(h.allowedOrigins) {
		log.LogWarnWithFields("auth", "Origin not allowed", map[string]any{
			"origin": state.Origin,
		})
		h.reject(w, stage, autherr.StateVerification(stateRejected, nil))
		return
	}
	stage = stageOriginAllowed

	if providerError != "" {
		message := q.Get("error_description")
		if message == "" {
			message = providerError
		}
		h.fail(w, r, stage, state, autherr.Upstream(http.StatusUnauthorized, message, nil))
		return
	}

	accessToken, err := h.github.ExchangeCode(ctx, code)
	if err != nil {
		h.fail(w, r, stage, state, err)
		return
	}
	stage = stageTokenExchanged

	profile, err := h.github.FetchProfile(ctx, accessToken)
	if err != nil {
		h.fail(w, r, stage, state, err)
		return
	}
	stage = stageProfileFetched

	signed, err := h.issuer.Issue(state, profile, now)
	if err != nil {
		h.fail(w, r, stage, state, err)
		return
	}
	stage = stageCredentialIssued

	target, err := successRedirect(state, signed)
	if err != nil {
		h.fail(w, r, stage, state, err)
		return
	}
	stage = stageRedirected

	log.LogInfoWithFields("auth", "Login completed", map[string]any{
		"stage":   stage,
		"origin":  state.Origin,
		"app":     state.App,
		"subject": credential.Subject(profile.ID),
	})
	http.Redirect(w, r, target, http.StatusFound)
}

// reject answers a failure whose destination is not trusted yet.
func (h *AuthHandlers) reject(w http.ResponseWriter, stage callbackStage, err error) {
	log.LogWarnWithFields("auth", "Callback rejected", map[string]any{
		"stage": stage,
		"error": err.Error(),
	})
	writeAuthError(w, err)
}

// fail redirects a failure to the verified origin's error path.
func (h *AuthHandlers) fail(w http.ResponseWriter, r *http.Request, stage callbackStage, state authstate.AuthState, err error) {
	fields := map[string]any{
		"stage":  stage,
		"origin": state.Origin,
		"app":    state.App,
		"error":  err.Error(),
	}
	if e, ok := autherr.As(err); ok {
		fields["kind"] = e.Kind
		if e.Status != 0 {
			fields["upstream_status"] = e.Status
		}
	}
	log.LogErrorWithFields("auth", "Callback failed", fields)

	target, buildErr := errorRedirect(state, redirectMessage(err))
	if buildErr != nil {
		jsonwriter.WriteInternalServerError(w, genericFailure)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func writeAuthError(w http.ResponseWriter, err error) {
	message := genericFailure
	if e, ok := autherr.As(err); ok {
		message = e.Message
	}
	switch autherr.HTTPStatus(err) {
	case http.StatusBadRequest:
		jsonwriter.WriteBadRequest(w, message)
	case http.StatusForbidden:
		jsonwriter.WriteForbidden(w, message)
	default:
		jsonwriter.WriteInternalServerError(w, genericFailure)
	}
}

// JWKSHandler publishes the verification keys.
func (h *AuthHandlers) JWKSHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		jsonwriter.WriteMethodNotAllowed(w, "Method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if err := json.NewEncoder(w).Encode(h.keys.JWKS()); err != nil {
		log.LogError("Failed to encode key set: %v", err)
	}
}
