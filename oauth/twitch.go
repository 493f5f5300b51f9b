package oauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/saltbet-bot/db"
)

// TwitchTokenURL is the Twitch OAuth token endpoint.
const TwitchTokenURL = "https://id.twitch.tv/oauth2/token"

// TwitchRefreshFunc refreshes Twitch user tokens through the token endpoint
// at tokenURL (TwitchTokenURL when empty). Twitch expects the client
// credentials in the form body.
func TwitchRefreshFunc(clientID, clientSecret, tokenURL string) RefreshFunc {
	if tokenURL == "" {
		tokenURL = TwitchTokenURL
	}
	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return func(ctx context.Context, refreshToken string) (db.Token, error) {
		if clientID == "" || clientSecret == "" {
			return db.Token{}, errors.New("twitch client id and secret are required to refresh tokens")
		}
		// An expired token forces the source to hit the endpoint.
		old := &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)}
		tok, err := conf.TokenSource(ctx, old).Token()
		if err != nil {
			return db.Token{}, err
		}
		return db.Token{
			Access:  tok.AccessToken,
			Refresh: tok.RefreshToken,
			Expiry:  tok.Expiry,
			Scope:   scopeString(tok.Extra("scope")),
		}, nil
	}
}

// scopeString flattens the scope field, which Twitch sends as a JSON array.
func scopeString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []any:
		parts := make([]string, 0, len(s))
		for _, p := range s {
			if str, ok := p.(string); ok {
				parts = append(parts, str)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}
