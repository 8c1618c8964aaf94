package webapp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/larsen-farm/plugintools/internal/env"
)

// ErrNoToken is returned when neither LARSEN_API_TOKEN nor API_TOKEN is set.
var ErrNoToken = errors.New("no web API token in environment")

// Info is the connection descriptor for the web API.
type Info struct {
	Token string
	// URL is the API root and always ends in "/api/".
	URL string
}

// ResolveInfo derives the API root from the token's iss claim. The token is
// only decoded; its signature belongs to the server.
func ResolveInfo(e *env.Env) (Info, error) {
	token, ok := e.APIToken()
	if !ok {
		return Info{}, ErrNoToken
	}
	issuer, err := Issuer(token)
	if err != nil {
		return Info{}, err
	}
	scheme := "http"
	if strings.Contains(issuer, ":443") {
		scheme = "https"
	}
	return Info{Token: token, URL: scheme + ":" + issuer + "/api/"}, nil
}

// Issuer returns the iss claim of token without verifying it.
func Issuer(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("decode API token: %w", err)
	}
	iss, ok := claims["iss"].(string)
	if !ok || iss == "" {
		return "", errors.New("decode API token: no iss claim")
	}
	return iss, nil
}
