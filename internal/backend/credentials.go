package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultTokenEnv = "REMINDERD_BACKEND_TOKEN"

var (
	ErrNoToken      = errors.New("backend: no token configured")
	ErrTokenExpired = errors.New("backend: token expired")
)

// TokenSource yields the bearer token for backend calls.
type TokenSource interface {
	Token() (string, error)
}

// Credentials reads the token from the environment first, then from the
// token file. The file holds either {"token": "..."} or the raw token.
type Credentials struct {
	Path string
	Env  string
}

type tokenFile struct {
	Token string `json:"token"`
}

func (c Credentials) Token() (string, error) {
	env := c.Env
	if env == "" {
		env = DefaultTokenEnv
	}
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v, nil
	}
	if c.Path == "" {
		return "", ErrNoToken
	}
	b, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	raw := strings.TrimSpace(string(b))
	if strings.HasPrefix(raw, "{") {
		var tf tokenFile
		if err := json.Unmarshal([]byte(raw), &tf); err != nil {
			return "", fmt.Errorf("parse token file: %w", err)
		}
		raw = strings.TrimSpace(tf.Token)
	}
	if raw == "" {
		return "", ErrNoToken
	}
	return raw, nil
}

// SaveToken persists token as JSON with owner-only permissions.
func SaveToken(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.Marshal(tokenFile{Token: strings.TrimSpace(token)})
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// CheckExpiry inspects JWT tokens without verifying the signature and
// fails when exp has passed. Opaque tokens are accepted as is.
func CheckExpiry(token string, now time.Time) error {
	if strings.Count(token, ".") != 2 {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		// Not a JWT after all.
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if !now.Before(exp.Time) {
		return fmt.Errorf("%w at %s", ErrTokenExpired, exp.Time.UTC().Format(time.RFC3339))
	}
	return nil
}
