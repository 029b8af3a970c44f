package config

import (
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/caarlos0/env/v10"
)

// Load parses environment variables into cfg using its `env` tags.
//
//	type Config struct {
//	    Port     int    `env:"HTTP_PORT" envDefault:"8080"`
//	    Endpoint string `env:"FLOW_ENDPOINT,required"`
//	}
func Load(cfg any) error {
	return LoadWithPrefix(cfg, "")
}

// LoadWithPrefix is Load with every variable name prefixed, so two instances
// of the same struct (say, a primary and a replica database) can coexist.
func LoadWithPrefix(cfg any, prefix string) error {
	opts := env.Options{
		Prefix: prefix,
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(url.URL{}): parseBaseURL,
		},
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// parseBaseURL accepts absolute http(s) URLs only and drops a trailing slash
// so paths can be appended with a plain "/".
func parseBaseURL(v string) (any, error) {
	u, err := url.Parse(strings.TrimRight(v, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", v, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("url %q must use http or https", v)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url %q has no host", v)
	}
	return *u, nil
}
