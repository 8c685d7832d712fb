package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider supplies raw tunables by key. A provider that is partially
// unavailable returns an error for the affected keys; the resolver then falls
// back to the embedded default.
type Provider interface {
	Lookup(key string) (value any, ok bool, err error)
}

// Map is an in-memory provider.
type Map map[string]any

// Lookup implements Provider.
func (m Map) Lookup(key string) (any, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

// LoadYAML reads a flat YAML mapping of tunables from path.
func LoadYAML(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	m := Map{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// Env reads tunables from environment variables named Prefix + upper-cased
// key, e.g. TOPICMILL_TFIDF_MIN_DF. Lists are comma separated.
type Env struct {
	Prefix string
}

// Lookup implements Provider.
func (e Env) Lookup(key string) (any, bool, error) {
	prefix := e.Prefix
	if prefix == "" {
		prefix = "TOPICMILL_"
	}
	v, ok := os.LookupEnv(prefix + strings.ToUpper(key))
	if !ok {
		return nil, false, nil
	}
	v = strings.TrimSpace(v)
	if strings.Contains(v, ",") {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, true, nil
	}
	return v, true, nil
}

// LoadEnvFile loads a dotenv file into the process environment without
// overriding variables that are already set.
func LoadEnvFile(path string) error {
	return godotenv.Load(path)
}

type chain []Provider

// Chain returns a provider that asks each provider in turn; the first one
// holding the key wins. Errors from earlier providers are kept and reported
// only if no later provider has the key.
func Chain(providers ...Provider) Provider {
	var c chain
	for _, p := range providers {
		if p != nil {
			c = append(c, p)
		}
	}
	return c
}

func (c chain) Lookup(key string) (any, bool, error) {
	var firstErr error
	for _, p := range c {
		v, ok, err := p.Lookup(key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return v, true, nil
		}
	}
	return nil, false, firstErr
}
