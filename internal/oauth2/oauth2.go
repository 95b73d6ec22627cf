// Package oauth2 supplies bearer tokens for XOAUTH2 authentication
// against POP3 servers that require it (Microsoft 365, Gmail).
package oauth2

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/golang-jwt/jwt/v5"
)

// TokenSource returns a current access token suitable for an XOAUTH2
// SASL exchange.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken wraps an operator-supplied access token, typically piped
// in from an external token-refresh process. It refuses an
// already-expired JWT rather than sending it and letting the server
// reject it, since the failure is knowable locally.
type StaticToken struct {
	token string
}

// NewStaticToken parses access token's claims (without verifying its
// signature; that is the issuer's job, not the client's) purely to
// read the expiry.
func NewStaticToken(accessToken string) *StaticToken {
	return &StaticToken{token: accessToken}
}

func (s *StaticToken) Token(ctx context.Context) (string, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(s.token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			if time.Now().After(exp.Time) {
				return "", fmt.Errorf("oauth2: access token expired at %s", exp.Time)
			}
		}
	}
	// A non-JWT bearer token (opaque, e.g. a Gmail access token) is not
	// an error: not every issuer hands out JWTs.
	return s.token, nil
}

// ClientCredentialsSource fetches tokens via the OAuth2
// client-credentials flow against Azure AD/Entra ID, for service
// accounts accessing a shared mailbox without interactive login.
type ClientCredentialsSource struct {
	cred  *azidentity.ClientSecretCredential
	scope string
}

// NewClientCredentialsSource builds a token source for the given
// tenant/client/secret triple. scope is typically
// "https://outlook.office365.com/.default".
func NewClientCredentialsSource(tenantID, clientID, clientSecret, scope string) (*ClientCredentialsSource, error) {
	cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("oauth2: building client secret credential: %w", err)
	}
	return &ClientCredentialsSource{cred: cred, scope: scope}, nil
}

func (c *ClientCredentialsSource) Token(ctx context.Context) (string, error) {
	tok, err := c.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{c.scope}})
	if err != nil {
		return "", fmt.Errorf("oauth2: acquiring token: %w", err)
	}
	return tok.Token, nil
}
