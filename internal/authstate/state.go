// Package authstate holds the login attempt context that travels through the
// browser and GitHub between the login and callback requests. Nothing is
// stored server-side: the state is validated on creation, sealed with an
// HMAC, and re-validated when it comes back.
package authstate

import (
	"errors"
	"math"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dgellow/auth-bridge/internal/autherr"
	"github.com/dgellow/auth-bridge/internal/crypto"
	"github.com/dgellow/auth-bridge/internal/envutil"
	"github.com/dgellow/auth-bridge/internal/urlutil"
)

// StateTimeout bounds how long a login may stay outstanding between the
// redirect to GitHub and the callback.
const StateTimeout = 15 * time.Minute

const DefaultErrorPath = "/error"

// maxExpire caps requested credential lifetimes so they fit comfortably in
// an int64 unix timestamp.
const maxExpire = math.MaxInt32

var ErrInvalidState = errors.New("invalid state")

// Letters-only segments. Digits, dots, hyphens and encoded characters are
// rejected on purpose.
var safePath = regexp.MustCompile(`^(/[A-Za-z]+)*/?$`)

type AuthState struct {
	Origin      string `json:"origin"`
	SuccessPath string `json:"successPath"`
	ErrorPath   string `json:"errorPath"`
	App         string `json:"app"`
	Expire      int64  `json:"expire"`
	Issued      int64  `json:"issued"`
	Nonce       string `json:"nonce"`
}

// LoginParams are the raw login request parameters.
type LoginParams struct {
	Target    string
	App       string
	ErrorPath string
	Expire    string
}

// ParamsFromQuery reads LoginParams from a login request query.
func ParamsFromQuery(q url.Values) LoginParams {
	return LoginParams{
		Target:    q.Get("target"),
		App:       q.Get("app"),
		ErrorPath: q.Get("errorPath"),
		Expire:    q.Get("expire"),
	}
}

// New builds a fresh state from login parameters. defaultExpire (seconds) is
// used when no expire parameter is given.
func New(params LoginParams, defaultExpire int64, now time.Time) (AuthState, error) {
	if params.Target == "" {
		return AuthState{}, autherr.Validation("Missing redirect target URL.")
	}
	app := strings.TrimSpace(params.App)
	if app == "" {
		return AuthState{}, autherr.Validation("Missing app.")
	}

	target, err := url.Parse(params.Target)
	if err != nil || !target.IsAbs() || target.Host == "" || target.Opaque != "" {
		return AuthState{}, autherr.Validation("Invalid redirect target URL.")
	}
	if target.User != nil {
		return AuthState{}, autherr.Validation("Redirect target must not carry credentials.")
	}
	if !envutil.AllowsScheme(target.Scheme, target.Hostname()) {
		return AuthState{}, autherr.Validation("Redirect target must use https.")
	}

	origin := urlutil.Origin(target)

	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if err := checkPath(origin, path); err != nil {
		return AuthState{}, err
	}
	successPath := path
	if target.RawQuery != "" {
		successPath += "?" + target.RawQuery
	}

	errorPath := params.ErrorPath
	if errorPath == "" {
		errorPath = DefaultErrorPath
	}
	if err := checkPath(origin, errorPath); err != nil {
		return AuthState{}, err
	}

	expire, err := parseExpire(params.Expire, defaultExpire)
	if err != nil {
		return AuthState{}, err
	}

	nonce, err := crypto.GenerateSecureToken()
	if err != nil {
		return AuthState{}, err
	}

	return AuthState{
		Origin:      origin,
		SuccessPath: successPath,
		ErrorPath:   errorPath,
		App:         app,
		Expire:      expire,
		Issued:      now.Unix(),
		Nonce:       nonce,
	}, nil
}

// Validate re-checks the structural invariants of a state, typically one
// that was just decoded.
func (s AuthState) Validate() error {
	if strings.TrimSpace(s.App) == "" {
		return autherr.Validation("Missing app.")
	}
	u, err := url.Parse(s.Origin)
	if err != nil || !u.IsAbs() || u.Host == "" || urlutil.Origin(u) != s.Origin {
		return autherr.Validation("Invalid origin.")
	}
	if !envutil.AllowsScheme(u.Scheme, u.Hostname()) {
		return autherr.Validation("Invalid origin.")
	}
	successPath, _, _ := strings.Cut(s.SuccessPath, "?")
	if err := checkPath(s.Origin, successPath); err != nil {
		return err
	}
	if err := checkPath(s.Origin, s.ErrorPath); err != nil {
		return err
	}
	if s.Expire <= 0 || s.Expire > maxExpire {
		return autherr.Validation("Invalid expire.")
	}
	if s.Issued <= 0 {
		return autherr.Validation("Invalid issue time.")
	}
	if s.Nonce == "" {
		return autherr.Validation("Missing nonce.")
	}
	return nil
}

// IsExpired reports whether more than StateTimeout has passed since the
// state was issued.
func (s AuthState) IsExpired(now time.Time) bool {
	return now.Unix()-s.Issued > int64(StateTimeout/time.Second)
}

// IsAllowedOrigin reports whether the state's origin is in allowList.
func (s AuthState) IsAllowedOrigin(allowList []string) bool {
	return slices.Contains(allowList, s.Origin)
}

// SuccessURL is the absolute URL the credential is delivered to.
func (s AuthState) SuccessURL() string {
	return s.Origin + s.SuccessPath
}

// ErrorURL is the absolute URL failures are reported to.
func (s AuthState) ErrorURL() string {
	return s.Origin + s.ErrorPath
}

func checkPath(origin, path string) error {
	if !strings.HasPrefix(path, "/") {
		return autherr.Validation("Invalid path.")
	}
	if strings.Contains(path, "..") || strings.Contains(path, "//") {
		return autherr.Validation("Invalid path.")
	}
	if !safePath.MatchString(path) {
		return autherr.Validation("Invalid path.")
	}

	base, err := url.Parse(origin)
	if err != nil {
		return autherr.Validation("Invalid origin.")
	}
	ref, err := url.Parse(path)
	if err != nil {
		return autherr.Validation("Invalid path.")
	}
	if urlutil.Origin(base.ResolveReference(ref)) != origin {
		return autherr.Validation("Invalid redirect.")
	}
	return nil
}

func parseExpire(raw string, fallback int64) (int64, error) {
	if raw == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 || f > maxExpire {
		return 0, autherr.Validation("Invalid expire.")
	}
	return int64(math.Ceil(f)), nil
}
