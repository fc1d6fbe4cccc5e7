package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Well-known secret names.  The file name under the secrets mount equals the
// name; the env var is listed in secretEnv.
const (
	SecretJWT    = "jwt_secret"
	SecretVK     = "vk_secret"
	SecretYandex = "yandex_secret"
)

// ErrSecretNotFound is returned when no source yields a non-empty value.
var ErrSecretNotFound = errors.New("secret not found")

var secretEnv = map[string]string{
	SecretJWT:    "JWT_SECRET",
	SecretVK:     "VK_CLIENT_SECRET",
	SecretYandex: "YANDEX_CLIENT_SECRET",
}

// Secrets resolves secrets from the environment, then from a mounted
// secrets directory (docker/k8s style), then from a local fallback directory.
type Secrets struct {
	Dir         string // e.g. /run/secrets
	FallbackDir string // e.g. ./secrets, for local development
	lookupEnv   func(string) (string, bool)
	readFile    func(string) ([]byte, error)
}

// NewSecrets builds a Secrets from SECRETS_DIR and SECRETS_FALLBACK_DIR.
func NewSecrets() *Secrets {
	return &Secrets{
		Dir:         envStr("SECRETS_DIR", "/run/secrets"),
		FallbackDir: envStr("SECRETS_FALLBACK_DIR", "secrets"),
		lookupEnv:   os.LookupEnv,
		readFile:    os.ReadFile,
	}
}

// Resolve returns the first non-empty value for name.
func (s *Secrets) Resolve(name string) (string, error) {
	if v, ok := s.lookupEnv(envName(name)); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	for _, dir := range []string{s.Dir, s.FallbackDir} {
		if dir == "" {
			continue
		}
		b, err := s.readFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if v := strings.TrimSpace(string(b)); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
}

// MustResolve is Resolve for secrets the process cannot serve without.
func (s *Secrets) MustResolve(name string) string {
	v, err := s.Resolve(name)
	if err != nil {
		log.Fatalf("missing required secret %s (env %s or file %s): %v",
			name, envName(name), filepath.Join(s.Dir, name), err)
	}
	return v
}

// Resolver returns a closure resolving name on every call, so a secret
// mounted or rotated after startup is picked up by the next request.
func (s *Secrets) Resolver(name string) func() (string, error) {
	return func() (string, error) { return s.Resolve(name) }
}

func envName(name string) string {
	if v, ok := secretEnv[name]; ok {
		return v
	}
	return strings.ToUpper(name)
}
