package sheets

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
)

// Scope is the OAuth scope needed to append rows.
const Scope = "https://www.googleapis.com/auth/spreadsheets"

// ErrNoCredentials is returned when none of the credential shapes is set.
var ErrNoCredentials = errors.New("no Google service account credentials configured")

// Credentials holds the three supported environment shapes. The first
// non-empty one wins: raw JSON, base64 JSON, then client email plus base64
// private key.
type Credentials struct {
	ServiceAccountJSON    string
	ServiceAccountJSONB64 string
	ClientEmail           string
	PrivateKeyB64         string
}

// ResolveCredentials builds a JWT config for the service account.
func ResolveCredentials(c Credentials) (*jwt.Config, error) {
	switch {
	case strings.TrimSpace(c.ServiceAccountJSON) != "":
		conf, err := google.JWTConfigFromJSON([]byte(c.ServiceAccountJSON), Scope)
		if err != nil {
			return nil, fmt.Errorf("ResolveCredentials: service account json: %w", err)
		}
		return conf, nil

	case strings.TrimSpace(c.ServiceAccountJSONB64) != "":
		raw, err := decodeBase64(c.ServiceAccountJSONB64)
		if err != nil {
			return nil, fmt.Errorf("ResolveCredentials: decode service account b64: %w", err)
		}
		conf, err := google.JWTConfigFromJSON(raw, Scope)
		if err != nil {
			return nil, fmt.Errorf("ResolveCredentials: service account b64: %w", err)
		}
		return conf, nil

	case c.ClientEmail != "" && c.PrivateKeyB64 != "":
		key, err := decodeBase64(c.PrivateKeyB64)
		if err != nil {
			return nil, fmt.Errorf("ResolveCredentials: decode private key: %w", err)
		}
		return &jwt.Config{
			Email:      c.ClientEmail,
			PrivateKey: key,
			Scopes:     []string{Scope},
			TokenURL:   google.JWTTokenURL,
		}, nil
	}
	return nil, ErrNoCredentials
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
