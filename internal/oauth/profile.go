package oauth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"mltscript/internal/credentials"
	"mltscript/internal/logging"
)

// FetchProfile reads the user profile from the userinfo endpoint.
func (s *Session) FetchProfile(ctx context.Context, tok *oauth2.Token) (*credentials.Profile, error) {
	client := oauth2.NewClient(s.clientContext(ctx), oauth2.StaticTokenSource(tok))
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if s.userinfoURL != "" {
		opts = append(opts, option.WithEndpoint(s.userinfoURL))
	}
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return &credentials.Profile{ID: info.Id, Email: info.Email, Name: info.Name, Picture: info.Picture}, nil
}

// ProfileFromIDToken reads profile claims from an id_token without verifying
// its signature. The token arrives directly from the token endpoint over TLS.
func ProfileFromIDToken(idToken string) (*credentials.Profile, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return nil, errors.New("id_token is empty")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, err
	}
	sub, _ := claims.GetSubject()
	profile := &credentials.Profile{
		ID:      sub,
		Email:   claimString(claims, "email"),
		Name:    claimString(claims, "name"),
		Picture: claimString(claims, "picture"),
	}
	if profile.ID == "" && profile.Email == "" {
		return nil, errors.New("id_token carries no identity claims")
	}
	return profile, nil
}

// resolveProfile tries userinfo first, then id_token claims. A missing
// profile never fails sign-in.
func (s *Session) resolveProfile(ctx context.Context, tok *oauth2.Token) *credentials.Profile {
	profile, err := s.FetchProfile(ctx, tok)
	if err == nil {
		return profile
	}
	s.logger.Debug("userinfo lookup failed", logging.Error(err))

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return nil
	}
	profile, err = ProfileFromIDToken(idToken)
	if err != nil {
		s.logger.Debug("id_token claims unreadable", logging.Error(err))
		return nil
	}
	return profile
}

func claimString(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}
