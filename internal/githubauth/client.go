// Package githubauth talks to GitHub on behalf of the callback handler: it
// builds the authorize URL, exchanges the authorization code for an access
// token, and fetches the user's profile.
package githubauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dgellow/auth-bridge/internal/autherr"
	"github.com/dgellow/auth-bridge/internal/log"
	"github.com/google/go-github/v61/github"
	"golang.org/x/oauth2"
	githubendpoint "golang.org/x/oauth2/github"
)

const (
	tokenExchangeFailed = "Token exchange failed"
	profileFetchFailed  = "Failed to fetch GitHub user"
)

// Scopes requested on the authorize URL.
var Scopes = []string{"read:user", "user:email"}

// Config holds the OAuth App registration and optional endpoint overrides.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// AuthorizeURL, TokenURL and APIBaseURL default to github.com
	AuthorizeURL string
	TokenURL     string
	APIBaseURL   string

	// HTTPClient is used for every upstream call. Its timeout bounds each
	// request; nil means http.DefaultClient.
	HTTPClient *http.Client
}

// Profile is the subset of the GitHub user the bridge puts into credentials.
type Profile struct {
	ID        int64
	Login     string
	Email     string
	Name      string
	AvatarURL string
}

// Client performs the GitHub side of the login. It keeps no per-request
// state and is safe for concurrent use.
type Client struct {
	oauth      oauth2.Config
	apiBaseURL *url.URL
	httpClient *http.Client
}

// NewClient creates a GitHub client from cfg.
func NewClient(cfg Config) (*Client, error) {
	endpoint := githubendpoint.Endpoint
	if cfg.AuthorizeURL != "" {
		endpoint.AuthURL = cfg.AuthorizeURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	// AutoDetect retries a failed exchange with header auth, which would
	// turn one token request into two.
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = "https://api.github.com/"
	}
	if !strings.HasSuffix(apiBase, "/") {
		apiBase += "/"
	}
	apiBaseURL, err := url.Parse(apiBase)
	if err != nil {
		return nil, fmt.Errorf("parsing GitHub API base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       Scopes,
			Endpoint:     endpoint,
		},
		apiBaseURL: apiBaseURL,
		httpClient: httpClient,
	}, nil
}

// AuthURL returns the GitHub authorize URL carrying the sealed state.
func (c *Client) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for an access token. Exactly one
// token request is made.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	log.LogTraceWithFields("githubauth", "Exchanging authorization code", map[string]any{
		"token_url": c.oauth.Endpoint.TokenURL,
	})

	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return "", exchangeError(err)
	}
	if token.AccessToken == "" {
		return "", autherr.Upstream(http.StatusBadGateway, tokenExchangeFailed, nil)
	}
	return token.AccessToken, nil
}

func exchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return autherr.Upstream(http.StatusBadGateway, tokenExchangeFailed, err)
	}

	status := http.StatusBadGateway
	if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 300 {
		status = retrieveErr.Response.StatusCode
	}

	message := tokenExchangeFailed
	switch {
	case retrieveErr.ErrorDescription != "":
		message = retrieveErr.ErrorDescription
	case retrieveErr.ErrorCode != "":
		message = retrieveErr.ErrorCode
	}
	return autherr.Upstream(status, message, err)
}

// FetchProfile loads the authenticated user's profile. When the public
// profile has no email the primary verified address is looked up; failing
// that lookup is not fatal.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	gh := c.api(accessToken)

	user, _, err := gh.Users.Get(ctx, "")
	if err != nil {
		return Profile{}, profileError(err)
	}
	if user.GetID() == 0 {
		return Profile{}, autherr.Upstream(http.StatusBadGateway, profileFetchFailed, errors.New("profile has no id"))
	}

	profile := Profile{
		ID:        user.GetID(),
		Login:     user.GetLogin(),
		Email:     user.GetEmail(),
		Name:      user.GetName(),
		AvatarURL: user.GetAvatarURL(),
	}

	if profile.Email == "" {
		email, err := primaryEmail(ctx, gh)
		if err != nil {
			log.LogWarnWithFields("githubauth", "Could not resolve primary email", map[string]any{
				"user_id": profile.ID,
				"error":   err.Error(),
			})
		}
		profile.Email = email
	}

	return profile, nil
}

func (c *Client) api(accessToken string) *github.Client {
	gh := github.NewClient(c.httpClient).WithAuthToken(accessToken)
	gh.BaseURL = c.apiBaseURL
	return gh
}

func profileError(err error) error {
	status := http.StatusBadGateway
	message := profileFetchFailed

	var errResp *github.ErrorResponse
	var rateErr *github.RateLimitError
	switch {
	case errors.As(err, &errResp):
		if errResp.Response != nil {
			status = errResp.Response.StatusCode
		}
		if errResp.Message != "" {
			message = errResp.Message
		}
	case errors.As(err, &rateErr):
		if rateErr.Response != nil {
			status = rateErr.Response.StatusCode
		}
		if rateErr.Message != "" {
			message = rateErr.Message
		}
	}
	return autherr.Upstream(status, message, err)
}

func primaryEmail(ctx context.Context, gh *github.Client) (string, error) {
	emails, _, err := gh.Users.ListEmails(ctx, nil)
	if err != nil {
		return "", err
	}
	for _, e := range emails {
		if e.GetPrimary() && e.GetVerified() {
			return e.GetEmail(), nil
		}
	}
	// Fallback to first verified email
	for _, e := range emails {
		if e.GetVerified() {
			return e.GetEmail(), nil
		}
	}
	return "", errors.New("no verified email found")
}
