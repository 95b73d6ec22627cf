package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	fileconfig "github.com/ziembor/gomailtesttool/internal/config"

	"github.com/ziembor/gomailtesttool/internal/common/validation"
)

// Config holds all pop3tool configuration.
type Config struct {
	// Core configuration
	ShowVersion bool
	Action      string

	// POP3 server configuration
	Host    string
	Port    int
	Timeout time.Duration

	// Authentication
	Username    string
	Password    string
	AccessToken string // static OAuth2 access token for XOAUTH2
	AuthMethod  string // auto, USER, APOP, SASL, XOAUTH2

	// Azure AD client-credentials flow, an alternative to a
	// pre-minted AccessToken for service-account mailboxes.
	AzureTenantID     string
	AzureClientID     string
	AzureClientSecret string
	AzureScope        string

	// List/fetch options
	MaxMessages int // Maximum messages to list or fetch
	OutputDir   string
	DeleteAfter bool // fetchmail: DELE each message after a successful RETR

	// TLS configuration
	POP3S              bool   // Use POP3S (implicit TLS on port 995)
	StartTLS           bool   // Force STLS
	SkipVerify         bool   // Skip TLS certificate verification
	TLSVersion         string // TLS version to use: 1.2, 1.3
	ClientCertPath     string // PKCS#12 bundle for mutual TLS
	ClientCertPassword string

	// Network configuration
	MaxRetries int
	RetryDelay time.Duration

	// Runtime configuration
	VerboseMode  bool
	LogLevel     string
	OutputFormat string
	LogFormat    string  // Log file format: csv, json
	RateLimit    float64 // Maximum requests per second (0 = unlimited)
}

// Action constants
const (
	ActionTestConnect = "testconnect"
	ActionTestAuth    = "testauth"
	ActionListMail    = "listmail"
	ActionFetchMail   = "fetchmail"
)

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Port:         110,
		Timeout:      30 * time.Second,
		AuthMethod:   "auto",
		MaxMessages:  100,
		AzureScope:   "https://outlook.office365.com/.default",
		POP3S:        false,
		StartTLS:     false,
		SkipVerify:   false,
		TLSVersion:   "1.2",
		MaxRetries:   3,
		RetryDelay:   2000 * time.Millisecond,
		VerboseMode:  false,
		LogLevel:     "INFO",
		OutputFormat: "text",
		LogFormat:    "csv",
		RateLimit:    0, // Unlimited by default
	}
}

// parseAndConfigureFlags parses command-line flags and environment variables.
func parseAndConfigureFlags() *Config {
	config := NewConfig()

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "POP3 Connectivity Testing Tool\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Repository: https://github.com/ziembor/gomailtesttool\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(flag.CommandLine.Output(), "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\nEnvironment Variables:\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  All flags can be set via environment variables with POP3 prefix\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  Example: POP3HOST, POP3PORT, POP3USERNAME\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Actions:\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  testconnect   - Test TCP connection and capabilities\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  testauth      - Test authentication (USER/PASS, APOP, SASL, XOAUTH2)\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  listmail      - List messages in mailbox\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  fetchmail     - Retrieve messages, optionally deleting them afterward\n")
	}

	// Core flags
	showVersion := flag.Bool("version", false, "Show version information")
	action := flag.String("action", "", "Action to perform: testconnect, testauth, listmail, fetchmail (env: POP3ACTION)")
	configPath := flag.String("config", "", "Optional TOML config file supplying defaults beneath flags and env vars (env: POP3CONFIG)")

	// POP3 server configuration
	host := flag.String("host", "", "POP3 server hostname (env: POP3HOST)")
	port := flag.Int("port", 110, "POP3 server port (env: POP3PORT)")
	timeout := flag.Int("timeout", 30, "Connection timeout in seconds (env: POP3TIMEOUT)")

	// Authentication
	username := flag.String("username", "", "Username for authentication (env: POP3USERNAME)")
	password := flag.String("password", "", "Password for authentication (env: POP3PASSWORD)")
	accessToken := flag.String("accesstoken", "", "OAuth2 access token for XOAUTH2 (env: POP3ACCESSTOKEN)")
	authMethod := flag.String("authmethod", "auto", "Auth method: auto, USER, APOP, SASL, XOAUTH2 (env: POP3AUTHMETHOD)")

	azureTenantID := flag.String("azuretenantid", "", "Azure AD tenant ID for client-credentials XOAUTH2 (env: POP3AZURETENANTID)")
	azureClientID := flag.String("azureclientid", "", "Azure AD application (client) ID (env: POP3AZURECLIENTID)")
	azureClientSecret := flag.String("azureclientsecret", "", "Azure AD client secret (env: POP3AZURECLIENTSECRET)")
	azureScope := flag.String("azurescope", "https://outlook.office365.com/.default", "OAuth2 scope for the client-credentials flow (env: POP3AZURESCOPE)")

	// List/fetch options
	maxMessages := flag.Int("maxmessages", 100, "Maximum messages to list or fetch (env: POP3MAXMESSAGES)")
	outputDir := flag.String("outputdir", "", "Directory to save fetched messages into (env: POP3OUTPUTDIR)")
	deleteAfter := flag.Bool("delete", false, "fetchmail: delete each message after retrieving it (env: POP3DELETE)")

	// TLS configuration
	pop3s := flag.Bool("pop3s", false, "Use POP3S (implicit TLS on port 995) (env: POP3POP3S)")
	startTLS := flag.Bool("starttls", false, "Force STLS upgrade (env: POP3STARTTLS)")
	skipVerify := flag.Bool("skipverify", false, "Skip TLS certificate verification (env: POP3SKIPVERIFY)")
	tlsVersion := flag.String("tlsversion", "1.2", "TLS version: 1.2, 1.3 (env: POP3TLSVERSION)")
	clientCertPath := flag.String("clientcert", "", "PKCS#12 client certificate bundle for mutual TLS (env: POP3CLIENTCERT)")
	clientCertPassword := flag.String("clientcertpassword", "", "Password for the PKCS#12 bundle (env: POP3CLIENTCERTPASSWORD)")

	// Network configuration
	maxRetries := flag.Int("maxretries", 3, "Maximum retry attempts (env: POP3MAXRETRIES)")
	retryDelay := flag.Int("retrydelay", 2000, "Retry delay in milliseconds (env: POP3RETRYDELAY)")

	// Runtime configuration
	verbose := flag.Bool("verbose", false, "Enable verbose output")
	logLevel := flag.String("loglevel", "INFO", "Log level: DEBUG, INFO, WARN, ERROR")
	output := flag.String("output", "text", "Output format: text, json (env: POP3OUTPUT)")
	logFormat := flag.String("logformat", "csv", "Log file format: csv, json (env: POP3LOGFORMAT)")
	rateLimit := flag.Float64("ratelimit", 0, "Rate limit (requests/second, 0=unlimited) (env: POP3RATELIMIT)")

	flag.Parse()

	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	// Apply flag values
	config.ShowVersion = *showVersion
	config.Action = *action
	config.Host = *host
	config.Port = *port
	config.Timeout = time.Duration(*timeout) * time.Second
	config.Username = *username
	config.Password = *password
	config.AccessToken = *accessToken
	config.AuthMethod = *authMethod
	config.AzureTenantID = *azureTenantID
	config.AzureClientID = *azureClientID
	config.AzureClientSecret = *azureClientSecret
	config.AzureScope = *azureScope
	config.MaxMessages = *maxMessages
	config.OutputDir = *outputDir
	config.DeleteAfter = *deleteAfter
	config.POP3S = *pop3s
	config.StartTLS = *startTLS
	config.SkipVerify = *skipVerify
	config.TLSVersion = *tlsVersion
	config.ClientCertPath = *clientCertPath
	config.ClientCertPassword = *clientCertPassword
	config.MaxRetries = *maxRetries
	config.RetryDelay = time.Duration(*retryDelay) * time.Millisecond
	config.VerboseMode = *verbose
	config.LogLevel = *logLevel
	config.OutputFormat = *output
	config.LogFormat = *logFormat
	config.RateLimit = *rateLimit

	// Apply environment variables (override defaults if flags not set)
	applyEnvOverrides(config)

	// Apply the optional TOML config file as the lowest-priority layer:
	// it only fills in fields that neither a flag nor an environment
	// variable already touched.
	path := *configPath
	if path == "" {
		path = os.Getenv("POP3CONFIG")
	}
	if path != "" {
		if err := applyFileConfig(config, path, explicit); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	// Smart port defaults
	if config.POP3S && config.Port == 110 {
		config.Port = 995
	}

	return config
}

// applyFileConfig loads the TOML file at path and merges each field
// into config unless a same-named flag was explicitly passed on the
// command line. Fields env vars already populated are left alone too,
// since those show up as non-default values by the time this runs.
func applyFileConfig(config *Config, path string, explicit map[string]bool) error {
	fileCfg, err := fileconfig.Load(path)
	if err != nil {
		return fmt.Errorf("loading config file %s: %w", path, err)
	}
	if err := fileCfg.Validate(); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}

	if !explicit["host"] && config.Host == "" {
		config.Host = fileCfg.Host
	}
	if !explicit["port"] && config.Port == 110 {
		config.Port = fileCfg.Port
	}
	if !explicit["timeout"] && config.Timeout == 30*time.Second {
		if d, err := time.ParseDuration(fileCfg.Timeout); err == nil {
			config.Timeout = d
		}
	}
	if !explicit["username"] && config.Username == "" {
		config.Username = fileCfg.Username
	}
	if !explicit["password"] && config.Password == "" {
		config.Password = fileCfg.Password
	}
	if !explicit["accesstoken"] && config.AccessToken == "" {
		config.AccessToken = fileCfg.AccessToken
	}
	if !explicit["authmethod"] && config.AuthMethod == "auto" {
		config.AuthMethod = fileCfg.AuthMethod
	}
	if !explicit["azuretenantid"] && config.AzureTenantID == "" {
		config.AzureTenantID = fileCfg.AzureTenantID
	}
	if !explicit["azureclientid"] && config.AzureClientID == "" {
		config.AzureClientID = fileCfg.AzureClientID
	}
	if !explicit["azureclientsecret"] && config.AzureClientSecret == "" {
		config.AzureClientSecret = fileCfg.AzureClientSecret
	}
	if !explicit["azurescope"] && config.AzureScope == "https://outlook.office365.com/.default" {
		config.AzureScope = fileCfg.AzureScope
	}
	if !explicit["maxmessages"] && config.MaxMessages == 100 {
		config.MaxMessages = fileCfg.MaxMessages
	}
	if !explicit["outputdir"] && config.OutputDir == "" {
		config.OutputDir = fileCfg.OutputDir
	}
	if !explicit["delete"] && !config.DeleteAfter {
		config.DeleteAfter = fileCfg.DeleteAfter
	}
	if !explicit["pop3s"] && !config.POP3S {
		config.POP3S = fileCfg.POP3S
	}
	if !explicit["starttls"] && !config.StartTLS {
		config.StartTLS = fileCfg.StartTLS
	}
	if !explicit["skipverify"] && !config.SkipVerify {
		config.SkipVerify = fileCfg.SkipVerify
	}
	if !explicit["tlsversion"] && config.TLSVersion == "1.2" {
		config.TLSVersion = fileCfg.TLSVersion
	}
	if !explicit["clientcert"] && config.ClientCertPath == "" {
		config.ClientCertPath = fileCfg.ClientCertPath
	}
	if !explicit["clientcertpassword"] && config.ClientCertPassword == "" {
		config.ClientCertPassword = fileCfg.ClientCertPassword
	}
	if !explicit["maxretries"] && config.MaxRetries == 3 {
		config.MaxRetries = fileCfg.MaxRetries
	}
	if !explicit["retrydelay"] && config.RetryDelay == 2000*time.Millisecond {
		if d, err := time.ParseDuration(fileCfg.RetryDelay); err == nil {
			config.RetryDelay = d
		}
	}
	if !explicit["loglevel"] && config.LogLevel == "INFO" {
		config.LogLevel = fileCfg.LogLevel
	}
	if !explicit["logformat"] && config.LogFormat == "csv" {
		config.LogFormat = fileCfg.LogFormat
	}
	if !explicit["ratelimit"] && config.RateLimit == 0 {
		config.RateLimit = fileCfg.RateLimit
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("POP3ACTION"); v != "" && config.Action == "" {
		config.Action = v
	}
	if v := os.Getenv("POP3HOST"); v != "" && config.Host == "" {
		config.Host = v
	}
	if v := os.Getenv("POP3PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Port = port
		}
	}
	if v := os.Getenv("POP3TIMEOUT"); v != "" {
		if timeout, err := strconv.Atoi(v); err == nil {
			config.Timeout = time.Duration(timeout) * time.Second
		}
	}
	if v := os.Getenv("POP3USERNAME"); v != "" && config.Username == "" {
		config.Username = v
	}
	if v := os.Getenv("POP3PASSWORD"); v != "" && config.Password == "" {
		config.Password = v
	}
	if v := os.Getenv("POP3ACCESSTOKEN"); v != "" && config.AccessToken == "" {
		config.AccessToken = v
	}
	if v := os.Getenv("POP3AUTHMETHOD"); v != "" && config.AuthMethod == "auto" {
		config.AuthMethod = v
	}
	if v := os.Getenv("POP3AZURETENANTID"); v != "" && config.AzureTenantID == "" {
		config.AzureTenantID = v
	}
	if v := os.Getenv("POP3AZURECLIENTID"); v != "" && config.AzureClientID == "" {
		config.AzureClientID = v
	}
	if v := os.Getenv("POP3AZURECLIENTSECRET"); v != "" && config.AzureClientSecret == "" {
		config.AzureClientSecret = v
	}
	if v := os.Getenv("POP3AZURESCOPE"); v != "" {
		config.AzureScope = v
	}
	if v := os.Getenv("POP3MAXMESSAGES"); v != "" {
		if max, err := strconv.Atoi(v); err == nil {
			config.MaxMessages = max
		}
	}
	if v := os.Getenv("POP3OUTPUTDIR"); v != "" && config.OutputDir == "" {
		config.OutputDir = v
	}
	if parseBoolEnv("POP3DELETE") {
		config.DeleteAfter = true
	}
	if parseBoolEnv("POP3POP3S") {
		config.POP3S = true
	}
	if parseBoolEnv("POP3STARTTLS") {
		config.StartTLS = true
	}
	if parseBoolEnv("POP3SKIPVERIFY") {
		config.SkipVerify = true
	}
	if v := os.Getenv("POP3TLSVERSION"); v != "" {
		config.TLSVersion = v
	}
	if v := os.Getenv("POP3CLIENTCERT"); v != "" && config.ClientCertPath == "" {
		config.ClientCertPath = v
	}
	if v := os.Getenv("POP3CLIENTCERTPASSWORD"); v != "" && config.ClientCertPassword == "" {
		config.ClientCertPassword = v
	}
	if v := os.Getenv("POP3MAXRETRIES"); v != "" {
		if max, err := strconv.Atoi(v); err == nil {
			config.MaxRetries = max
		}
	}
	if v := os.Getenv("POP3RETRYDELAY"); v != "" {
		if delay, err := strconv.Atoi(v); err == nil {
			config.RetryDelay = time.Duration(delay) * time.Millisecond
		}
	}
	if v := os.Getenv("POP3OUTPUT"); v != "" {
		config.OutputFormat = v
	}
	if v := os.Getenv("POP3LOGFORMAT"); v != "" {
		config.LogFormat = v
	}
	if v := os.Getenv("POP3RATELIMIT"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			config.RateLimit = rate
		}
	}
}

// parseBoolEnv parses a boolean environment variable.
func parseBoolEnv(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

// usesClientCredentials reports whether Azure AD client-credentials
// flow was configured as the token source for XOAUTH2.
func (c *Config) usesClientCredentials() bool {
	return c.AzureTenantID != "" || c.AzureClientID != "" || c.AzureClientSecret != ""
}

// validateConfiguration validates the configuration.
func validateConfiguration(config *Config) error {
	// Validate action
	validActions := []string{ActionTestConnect, ActionTestAuth, ActionListMail, ActionFetchMail}
	actionValid := false
	for _, a := range validActions {
		if config.Action == a {
			actionValid = true
			break
		}
	}
	if !actionValid {
		return fmt.Errorf("invalid action: %s (valid: %s)", config.Action, strings.Join(validActions, ", "))
	}

	// Validate host
	if config.Host == "" {
		return fmt.Errorf("host is required")
	}
	if err := validation.ValidateHostname(config.Host); err != nil {
		return fmt.Errorf("invalid host: %w", err)
	}

	// Validate port
	if err := validation.ValidatePort(config.Port); err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}

	if config.ClientCertPath != "" {
		if err := validation.ValidateFilePath(config.ClientCertPath, "clientcert"); err != nil {
			return fmt.Errorf("invalid client certificate: %w", err)
		}
	}

	// Validate mutual exclusion
	if config.POP3S && config.StartTLS {
		return fmt.Errorf("cannot use both -pop3s and -starttls; choose one")
	}

	// Action-specific validation
	switch config.Action {
	case ActionTestAuth, ActionListMail, ActionFetchMail:
		if config.Username == "" {
			return fmt.Errorf("%s requires -username", config.Action)
		}
		switch {
		case strings.EqualFold(config.AuthMethod, "XOAUTH2"):
			if config.AccessToken == "" && !config.usesClientCredentials() {
				return fmt.Errorf("XOAUTH2 authentication requires -accesstoken or -azuretenantid/-azureclientid/-azureclientsecret")
			}
		case config.AccessToken != "" || config.usesClientCredentials():
			// A token source was configured; assume XOAUTH2 regardless
			// of -authmethod.
		case config.Password == "":
			return fmt.Errorf("%s requires -password (or an XOAUTH2 token source)", config.Action)
		}
	}

	return nil
}
