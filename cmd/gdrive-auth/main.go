// Command gdrive-auth obtains the refresh token used by the gdrive artifact store.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"

	"framecast/internal/pkg/logger"
	"framecast/internal/pkg/util"
)

func main() {
	ctx := context.Background()
	log := logger.New(logger.Config{Level: "info", Format: "text", ServiceName: "framecast-gdrive-auth"})

	conf := &oauth2.Config{
		ClientID:     util.MustEnv("GDRIVE_CLIENT_ID"),
		ClientSecret: util.MustEnv("GDRIVE_CLIENT_SECRET"),
		Endpoint:     google.Endpoint,
		// Artifacts only need files the app itself created.
		Scopes: []string{drive.DriveFileScope},
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.LogFatal("failed to open callback listener", err)
	}
	defer ln.Close()
	conf.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d/callback", ln.Addr().(*net.TCPAddr).Port)

	code, err := awaitCode(ln, conf)
	if err != nil {
		log.LogFatal("authorization failed", err)
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		log.LogFatal("token exchange failed", err)
	}

	// Google omits the refresh token when the app was already authorized.
	if strings.TrimSpace(tok.RefreshToken) == "" {
		log.Error("no refresh token returned; revoke the app at https://myaccount.google.com/permissions and retry")
		return
	}
	fmt.Printf("GDRIVE_REFRESH_TOKEN=%s\n", tok.RefreshToken)
}

func awaitCode(ln net.Listener, conf *oauth2.Config) (string, error) {
	state := randomState()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("state") != state:
			http.Error(w, "invalid state", http.StatusBadRequest)
			errCh <- errors.New("invalid state")
		case q.Get("error") != "":
			http.Error(w, "auth error: "+q.Get("error"), http.StatusBadRequest)
			errCh <- fmt.Errorf("auth error: %s", q.Get("error"))
		case q.Get("code") == "":
			http.Error(w, "missing code", http.StatusBadRequest)
			errCh <- errors.New("missing code")
		default:
			fmt.Fprintln(w, "Authorized. You can close this window.")
			codeCh <- q.Get("code")
		}
	})

	srv := &http.Server{Handler: mux, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Printf("Open this URL in your browser:\n\n%s\n\nWaiting on %s\n", authURL, conf.RedirectURL)

	select {
	case code := <-codeCh:
		return code, nil
	case err := <-errCh:
		return "", err
	case <-time.After(3 * time.Minute):
		return "", errors.New("timed out waiting for authorization")
	}
}

func randomState() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
