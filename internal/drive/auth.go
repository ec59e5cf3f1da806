package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"ragbot/internal/domain"
)

// Auth runs the OAuth consent flow for an installed-app client and keeps the
// resulting token in a file.
type Auth struct {
	cfg       *oauth2.Config
	tokenFile string
}

// NewAuth reads OAuth client credentials as downloaded from the Google Cloud
// console. redirectURL overrides the first redirect URI in the file.
func NewAuth(credentialsFile, tokenFile, redirectURL string) (*Auth, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: read drive credentials: %w", domain.ErrDriveUnavailable, err)
	}
	cfg, err := google.ConfigFromJSON(b, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("%w: parse drive credentials: %w", domain.ErrDriveUnavailable, err)
	}
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	return &Auth{cfg: cfg, tokenFile: tokenFile}, nil
}

// URL is the consent page the user opens to obtain an authorization code.
func (a *Auth) URL() string {
	return a.cfg.AuthCodeURL("ragbot", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for a token and saves it.
func (a *Auth) Exchange(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New("authorization code is empty")
	}
	tok, err := a.cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("%w: exchange code: %w", domain.ErrDriveUnavailable, err)
	}
	return a.saveToken(tok)
}

// Authorized reports whether a token has been saved.
func (a *Auth) Authorized() bool {
	_, err := os.Stat(a.tokenFile)
	return err == nil
}

// HTTPClient returns a client that signs requests with the saved token and
// refreshes it when it expires.
func (a *Auth) HTTPClient() (*http.Client, error) {
	tok, err := a.loadToken()
	if err != nil {
		return nil, err
	}
	return a.cfg.Client(context.Background(), tok), nil
}

func (a *Auth) loadToken() (*oauth2.Token, error) {
	f, err := os.Open(a.tokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: not authorized yet, open the auth URL and submit the code", domain.ErrDriveUnavailable)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open token: %w", domain.ErrDriveUnavailable, err)
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("%w: decode token: %w", domain.ErrDriveUnavailable, err)
	}
	return tok, nil
}

func (a *Auth) saveToken(tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(a.tokenFile), 0o700); err != nil {
		return fmt.Errorf("%w: create token dir: %w", domain.ErrStorage, err)
	}
	f, err := os.OpenFile(a.tokenFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("%w: write token: %w", domain.ErrStorage, err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: encode token: %w", domain.ErrStorage, err)
	}
	return f.Close()
}
