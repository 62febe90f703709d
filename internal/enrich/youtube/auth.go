package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"golang.org/x/oauth2"
)

// Scope is the read-only YouTube Data API scope.
const Scope = "https://www.googleapis.com/auth/youtube.readonly"

// clientSecrets mirrors the Google "installed application" credentials file.
type clientSecrets struct {
	Installed *secretBlock `json:"installed"`
	Web       *secretBlock `json:"web"`
}

type secretBlock struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	AuthURI      string   `json:"auth_uri"`
	TokenURI     string   `json:"token_uri"`
	RedirectURIs []string `json:"redirect_uris"`
}

// LoadOAuthConfig reads a client secrets file.
func LoadOAuthConfig(path string) (*oauth2.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("youtube: read client secrets: %w", err)
	}
	var cs clientSecrets
	if err := json.Unmarshal(b, &cs); err != nil {
		return nil, fmt.Errorf("youtube: decode client secrets %s: %w", path, err)
	}
	blk := cs.Installed
	if blk == nil {
		blk = cs.Web
	}
	if blk == nil || blk.ClientID == "" || blk.TokenURI == "" {
		return nil, fmt.Errorf("youtube: client secrets %s: missing installed.client_id or token_uri", path)
	}
	cfg := &oauth2.Config{
		ClientID:     blk.ClientID,
		ClientSecret: blk.ClientSecret,
		Endpoint:     oauth2.Endpoint{AuthURL: blk.AuthURI, TokenURL: blk.TokenURI},
		Scopes:       []string{Scope},
	}
	if len(blk.RedirectURIs) > 0 {
		cfg.RedirectURL = blk.RedirectURIs[0]
	}
	return cfg, nil
}

// LoadToken reads a stored token. The consent flow that creates it is run
// out of band.
func LoadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("youtube: token file %s not found; authorize once and store the token there: %w", path, err)
		}
		return nil, fmt.Errorf("youtube: read token: %w", err)
	}
	tok := new(oauth2.Token)
	if err := json.Unmarshal(b, tok); err != nil {
		return nil, fmt.Errorf("youtube: decode token %s: %w", path, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("youtube: token %s holds neither access nor refresh token", path)
	}
	return tok, nil
}

// Transport returns an authorizing RoundTripper over base. With a client
// secrets file the token is refreshed when it expires and the refreshed token
// is written back to tokenFile; without one the stored token is used as is.
func Transport(ctx context.Context, tokenFile, clientSecretsFile string, base http.RoundTripper) (http.RoundTripper, error) {
	tok, err := LoadToken(tokenFile)
	if err != nil {
		return nil, err
	}

	var src oauth2.TokenSource
	if clientSecretsFile == "" {
		src = oauth2.StaticTokenSource(tok)
	} else {
		cfg, err := LoadOAuthConfig(clientSecretsFile)
		if err != nil {
			return nil, err
		}
		src = &savingSource{
			path: tokenFile,
			last: tok.AccessToken,
			src:  oauth2.ReuseTokenSource(tok, cfg.TokenSource(ctx, tok)),
		}
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &oauth2.Transport{Source: src, Base: base}, nil
}

// savingSource persists refreshed tokens.
type savingSource struct {
	mu   sync.Mutex
	path string
	last string
	src  oauth2.TokenSource
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		b, err := json.Marshal(tok)
		if err == nil {
			err = os.WriteFile(s.path, b, 0o600)
		}
		if err != nil {
			return nil, fmt.Errorf("youtube: save refreshed token: %w", err)
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}
