// ABOUTME: Operator subcommands that talk to a running gateway or mint credentials
// ABOUTME: health and conversations call the HTTP API; hash-key and token work offline

package main

import (
	"bufio"
	"bytes"
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

	"github.com/spf13/pflag"

	"github.com/2389/teams-gateway/internal/auth"
	"github.com/2389/teams-gateway/internal/config"
	"github.com/2389/teams-gateway/internal/secrets"
)

const (
	defaultTokenSubject = "operator"
	defaultTokenTTL     = 30 * 24 * time.Hour
	requestTimeout      = 10 * time.Second
)

// newSecretGetter creates the Parameter Store client for "ssm:" values.
var newSecretGetter secrets.GetterFactory = secrets.NewFromEnvironment

// readOperatorConfig reads the config without validating bot credentials or
// resolving secrets. Operator commands only need an address or signing key.
func readOperatorConfig(configFlag string) (*config.Config, error) {
	cfg, err := config.Read(resolveConfigPath(configFlag))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// resolveSecret fetches value from Parameter Store when it is an "ssm:" reference.
func resolveSecret(ctx context.Context, value string) (string, error) {
	if !secrets.IsReference(value) {
		return value, nil
	}
	getter, err := newSecretGetter(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving secrets: %w", err)
	}
	resolved, err := getter.GetParameter(ctx, strings.TrimPrefix(value, secrets.Prefix))
	if err != nil {
		return "", fmt.Errorf("resolving secrets: %w", err)
	}
	return resolved, nil
}

// localURL turns a listen address into a URL reachable from this host.
func localURL(addr, path string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/") + path
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + path
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + path
}

// targetAddr returns --addr, or the configured HTTP address.
func targetAddr(addrFlag, configFlag string) (string, error) {
	if addrFlag != "" {
		return addrFlag, nil
	}
	cfg, err := readOperatorConfig(configFlag)
	if err != nil {
		return "", err
	}
	if cfg.Server.HTTPAddr == "" {
		return "", errors.New("server.http_addr is not set; pass --addr")
	}
	return cfg.Server.HTTPAddr, nil
}

func get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	// The body is read before cancel fires.
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

func runHealth(ctx context.Context, args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("health", pflag.ContinueOnError)
	configFlag := flags.StringP("config", "c", "", "config file (yaml or toml)")
	addrFlag := flags.String("addr", "", "gateway HTTP address (default: server.http_addr)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	addr, err := targetAddr(*addrFlag, *configFlag)
	if err != nil {
		return err
	}

	resp, err := get(ctx, localURL(addr, "/health/ready"), nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("not ready: status %d", resp.StatusCode)
	}

	var body struct {
		Conversations int `json:"conversations"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	fmt.Fprintf(out, "ready (%d conversations)\n", body.Conversations)
	return nil
}

func runConversations(ctx context.Context, args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("conversations", pflag.ContinueOnError)
	configFlag := flags.StringP("config", "c", "", "config file (yaml or toml)")
	addrFlag := flags.String("addr", "", "gateway HTTP address (default: server.http_addr)")
	keyFlag := flags.String("api-key", "", "admin API key or operator JWT (default: $PROACTIVE_API_KEY)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	addr, err := targetAddr(*addrFlag, *configFlag)
	if err != nil {
		return err
	}

	header := http.Header{}
	key := *keyFlag
	if key == "" {
		key = os.Getenv("PROACTIVE_API_KEY")
	}
	if key != "" {
		header.Set("X-Api-Key", key)
	}

	resp, err := get(ctx, localURL(addr, "/api/conversations"), header)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("listing conversations: status %d", resp.StatusCode)
	}

	var body struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(body.Items)
}

func runHashKey(args []string, in io.Reader, out io.Writer) error {
	flags := pflag.NewFlagSet("hash-key", pflag.ContinueOnError)
	if err := flags.Parse(args); err != nil {
		return err
	}

	var key string
	if flags.NArg() > 0 {
		key = flags.Arg(0)
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading key: %w", err)
		}
		key = line
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("api key cannot be empty")
	}

	hash, err := auth.HashAPIKey(key)
	if err != nil {
		return fmt.Errorf("hashing key: %w", err)
	}
	fmt.Fprintln(out, hash)
	return nil
}

func runToken(ctx context.Context, args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("token", pflag.ContinueOnError)
	configFlag := flags.StringP("config", "c", "", "config file (yaml or toml)")
	subject := flags.String("subject", defaultTokenSubject, "operator name stored in the sub claim")
	ttl := flags.Duration("ttl", defaultTokenTTL, "token lifetime")
	secretFlag := flags.String("secret", "", "signing secret (default: auth.jwt_secret)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(*subject) == "" {
		return errors.New("--subject cannot be empty")
	}
	if *ttl <= 0 {
		return errors.New("--ttl must be positive")
	}

	secret := *secretFlag
	if secret == "" {
		cfg, err := readOperatorConfig(*configFlag)
		if err != nil {
			return err
		}
		secret = cfg.Auth.JWTSecret
	}
	secret, err := resolveSecret(ctx, secret)
	if err != nil {
		return err
	}
	if secret == "" {
		return errors.New("auth.jwt_secret is not configured (or pass --secret)")
	}

	token, err := auth.NewJWTVerifier([]byte(secret)).Generate(*subject, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}
