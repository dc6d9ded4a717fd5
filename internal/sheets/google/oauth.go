package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// DefaultTokenFile is where Authorize stores the token when
// GOOGLE_OAUTH_TOKEN_FILE is unset.
const DefaultTokenFile = "token.json"

// oauthClientJSON reads the OAuth client from GOOGLE_OAUTH_CLIENT_JSON or
// GOOGLE_OAUTH_CLIENT_FILE. ok is false when neither is set.
func oauthClientJSON() (data []byte, ok bool, err error) {
	if v := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON")); v != "" {
		return []byte(v), true, nil
	}
	if f := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE")); f != "" {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, true, fmt.Errorf("read oauth client file: %w", err)
		}
		return data, true, nil
	}
	return nil, false, nil
}

// oauthToken reads the token from GOOGLE_OAUTH_TOKEN_JSON or
// GOOGLE_OAUTH_TOKEN_FILE.
func oauthToken() (*oauth2.Token, error) {
	var data []byte
	if v := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_JSON")); v != "" {
		data = []byte(v)
	} else if f := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")); f != "" {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read oauth token file: %w", err)
		}
		data = b
	} else {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	return &tok, nil
}

func oauthConfig(clientJSON []byte) (*oauth2.Config, error) {
	cfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

// oauthOptions builds client options from a stored user token. The token
// source refreshes the access token as needed.
func oauthOptions(ctx context.Context, clientJSON []byte) ([]goption.ClientOption, error) {
	cfg, err := oauthConfig(clientJSON)
	if err != nil {
		return nil, err
	}
	tok, err := oauthToken()
	if err != nil {
		return nil, err
	}
	return []goption.ClientOption{goption.WithTokenSource(cfg.TokenSource(ctx, tok))}, nil
}

// AuthorizeConfig configures the interactive OAuth flow.
type AuthorizeConfig struct {
	// RedirectPort of the local callback listener, default 8085.
	RedirectPort string
	// TokenFile receives the token, default GOOGLE_OAUTH_TOKEN_FILE or token.json.
	TokenFile string
	Timeout   time.Duration
	// Out receives the URL the user must open.
	Out io.Writer
}

// Authorize runs the installed-app OAuth flow: it prints the consent URL,
// waits for the redirect on a local listener, exchanges the code and saves
// the token. It returns the token file path.
func Authorize(ctx context.Context, cfg AuthorizeConfig) (string, error) {
	clientJSON, ok, err := oauthClientJSON()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}
	oc, err := oauthConfig(clientJSON)
	if err != nil {
		return "", err
	}

	if cfg.RedirectPort == "" {
		cfg.RedirectPort = "8085"
	}
	if cfg.TokenFile == "" {
		cfg.TokenFile = strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE"))
	}
	if cfg.TokenFile == "" {
		cfg.TokenFile = DefaultTokenFile
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	oc.RedirectURL = "http://localhost:" + cfg.RedirectPort + "/callback"

	ln, err := net.Listen("tcp", net.JoinHostPort("localhost", cfg.RedirectPort))
	if err != nil {
		return "", fmt.Errorf("listen for oauth callback: %w", err)
	}
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", callbackHandler(codeCh, errCh))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	fmt.Fprintf(cfg.Out, "Open this URL to authorize:\n%s\n", oc.AuthCodeURL("state-token", oauth2.AccessTypeOffline))

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	select {
	case code := <-codeCh:
		tok, err := oc.Exchange(ctx, code)
		if err != nil {
			return "", fmt.Errorf("token exchange: %w", err)
		}
		if err := SaveToken(cfg.TokenFile, tok); err != nil {
			return "", err
		}
		return cfg.TokenFile, nil
	case err := <-errCh:
		return "", err
	case <-ctx.Done():
		return "", fmt.Errorf("authorization not completed: %w", ctx.Err())
	}
}

func callbackHandler(codeCh chan<- string, errCh chan<- error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if errStr := r.URL.Query().Get("error"); errStr != "" {
			http.Error(w, "OAuth error: "+errStr, http.StatusBadRequest)
			select {
			case errCh <- fmt.Errorf("oauth error: %s", errStr):
			default:
			}
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "You may close this window and return to the terminal.")
		select {
		case codeCh <- code:
		default:
		}
	}
}

// SaveToken writes tok as JSON, readable by the owner only.
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}
