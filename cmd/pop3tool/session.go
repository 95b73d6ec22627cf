package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ziembor/gomailtesttool/internal/common/ratelimit"
	"github.com/ziembor/gomailtesttool/internal/common/retry"
	"github.com/ziembor/gomailtesttool/internal/metrics"
	"github.com/ziembor/gomailtesttool/internal/oauth2"
	"github.com/ziembor/gomailtesttool/internal/pop3tls"
	"github.com/ziembor/gomailtesttool/pop3"
)

// newSession builds an unconnected Client whose wire transcript goes to
// out (nil for none) and whose structured records go to slogLogger.
func newSession(out io.Writer, slogLogger *slog.Logger, collector metrics.Collector) *pop3.Client {
	return pop3.NewClient(out, slogLogger, collector)
}

// connectOptions maps the CLI's TLS flags onto the library's strategy
// enum; -pop3s and -starttls are mutually exclusive, enforced in
// validateConfiguration.
func connectOptions(config *Config) pop3.ConnectOptions {
	switch {
	case config.POP3S:
		return pop3.OptionsSslOnConnect
	case config.StartTLS:
		return pop3.OptionsStartTls
	default:
		return pop3.OptionsAuto
	}
}

func buildTLSConfig(config *Config) (*tls.Config, error) {
	return pop3tls.Build(pop3tls.Options{
		ServerName:         config.Host,
		InsecureSkipVerify: config.SkipVerify,
		MinVersion:         parseTLSVersion(config.TLSVersion),
		ClientCertPath:     config.ClientCertPath,
		ClientCertPassword: config.ClientCertPassword,
	})
}

func parseTLSVersion(version string) uint16 {
	switch version {
	case "1.3":
		return tls.VersionTLS13
	case "1.2":
		return tls.VersionTLS12
	case "1.1":
		return tls.VersionTLS11
	case "1.0":
		return tls.VersionTLS10
	default:
		return tls.VersionTLS12
	}
}

// connectClient rate-limits and retries the dial/handshake, since a
// transient DNS or connection-reset failure shouldn't fail the whole
// run immediately.
func connectClient(ctx context.Context, config *Config, client *pop3.Client, limiter *ratelimit.Limiter) error {
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	tlsCfg, err := buildTLSConfig(config)
	if err != nil {
		return fmt.Errorf("building TLS config: %w", err)
	}
	return retry.RetryWithBackoff(ctx, config.MaxRetries, config.RetryDelay, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, config.Timeout)
		defer cancel()
		return client.Connect(attemptCtx, config.Host, config.Port, connectOptions(config), tlsCfg)
	})
}

// resolveAccessToken returns a bearer token and true if the
// configuration names an XOAUTH2 token source, either a static token
// or the Azure AD client-credentials flow.
func resolveAccessToken(ctx context.Context, config *Config) (token string, ok bool, err error) {
	if config.usesClientCredentials() {
		src, err := oauth2.NewClientCredentialsSource(config.AzureTenantID, config.AzureClientID, config.AzureClientSecret, config.AzureScope)
		if err != nil {
			return "", false, err
		}
		tok, err := src.Token(ctx)
		if err != nil {
			return "", false, err
		}
		return tok, true, nil
	}
	if config.AccessToken != "" {
		tok, err := oauth2.NewStaticToken(config.AccessToken).Token(ctx)
		if err != nil {
			return "", false, err
		}
		return tok, true, nil
	}
	return "", false, nil
}

// authenticate picks the auth path named by -authmethod, or XOAUTH2
// automatically whenever a token source is configured regardless of
// -authmethod, and returns the mechanism name actually used.
func authenticate(ctx context.Context, config *Config, client *pop3.Client) (string, error) {
	if token, ok, err := resolveAccessToken(ctx, config); err != nil {
		return "XOAUTH2", fmt.Errorf("acquiring XOAUTH2 token: %w", err)
	} else if ok {
		mech := pop3.NewXOAUTH2Mechanism(config.Username, token)
		return "XOAUTH2", client.AuthenticateWith(ctx, mech)
	}

	switch strings.ToUpper(config.AuthMethod) {
	case "USER":
		return "USER", client.Authenticate(ctx, pop3.AuthUserPass, config.Username, config.Password)
	case "APOP":
		return "APOP", client.Authenticate(ctx, pop3.AuthApop, config.Username, config.Password)
	case "SASL":
		return "SASL-PLAIN", client.Authenticate(ctx, pop3.AuthSasl, config.Username, config.Password)
	case "LOGIN":
		return "SASL-LOGIN", client.AuthenticateWith(ctx, pop3.NewLoginMechanism(config.Username, config.Password))
	default:
		return "AUTO", client.Authenticate(ctx, pop3.AuthAuto, config.Username, config.Password)
	}
}
