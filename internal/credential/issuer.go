// Package credential signs the short-lived credentials handed back to
// origin applications and publishes the keys that verify them.
package credential

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgellow/auth-bridge/internal/authstate"
	"github.com/dgellow/auth-bridge/internal/autherr"
	"github.com/dgellow/auth-bridge/internal/githubauth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	Provider = "github"

	issueFailed = "Failed to issue credential"
)

// Claims is the payload of an issued credential.
type Claims struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Picture  string `json:"picture"`
	Provider string `json:"provider"`
	Login    string `json:"login,omitempty"`
	jwt.RegisteredClaims
}

// Issuer turns a verified profile into a signed credential.
type Issuer struct {
	key           *SigningKey
	issuer        string
	defaultExpire time.Duration
}

func NewIssuer(key *SigningKey, issuer string, defaultExpire time.Duration) *Issuer {
	return &Issuer{key: key, issuer: issuer, defaultExpire: defaultExpire}
}

// ResolveExpire returns the requested lifetime in seconds when it is
// positive and fallback otherwise.
func ResolveExpire(requested int64, fallback time.Duration) time.Duration {
	if requested > 0 {
		return time.Duration(requested) * time.Second
	}
	return fallback
}

// Issue signs a credential for profile bound to the state's application.
func (i *Issuer) Issue(state authstate.AuthState, profile githubauth.Profile, now time.Time) (string, error) {
	if i.key == nil || i.key.PrivateKey == nil {
		return "", autherr.Signing(issueFailed, errors.New("no signing key loaded"))
	}

	exp := now.Add(ResolveExpire(state.Expire, i.defaultExpire))
	claims := Claims{
		Email:    profile.Email,
		Name:     profile.Name,
		Picture:  profile.AvatarURL,
		Provider: Provider,
		Login:    profile.Login,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   Subject(profile.ID),
			Audience:  jwt.ClaimStrings{state.App},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = i.key.KID
	signed, err := token.SignedString(i.key.PrivateKey)
	if err != nil {
		return "", autherr.Signing(issueFailed, fmt.Errorf("signing credential: %w", err))
	}
	return signed, nil
}

// Subject is the credential subject for a GitHub user id.
func Subject(id int64) string {
	return Provider + ":" + strconv.FormatInt(id, 10)
}
