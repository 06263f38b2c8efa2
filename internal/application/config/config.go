package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pion/webrtc/v4"
)

type Config struct {
	Debug      bool   `env:"DEBUG" envDefault:"false"`
	Port       string `env:"PORT" envDefault:"3000"`
	MetricPort string `env:"METRIC_PORT" envDefault:"9090"`
	Domain     string `env:"DOMAIN" envDefault:"http://localhost:3000"`
	JWTSecret  string `env:"JWT_SECRET,required"`

	TurnServers []webrtc.ICEServer
	StunServers []webrtc.ICEServer

	Coturn   CoturnConfig
	Stun     StunConfig
	Push     PushConfig
	Postgres PostgresConfig
}

type PostgresConfig struct {
	URL string `env:"POSTGRES_URL"`

	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	Name     string `env:"POSTGRES_NAME" envDefault:"discordlite"`
	SSL      string `env:"POSTGRES_SSL" envDefault:"disable"`
}

func (p *PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}

	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Name,
		p.SSL,
	)
}

type CoturnConfig struct {
	Host     string `env:"COTURN_HOST"`
	Username string `env:"COTURN_USERNAME"`
	Password string `env:"COTURN_PASSWORD"`

	// Secret is the coturn static-auth-secret used to mint short-lived
	// credentials for clients.
	Secret string `env:"COTURN_SECRET"`
}

type StunConfig struct {
	// URLs is a comma-separated list, e.g. "stun:stun.l.google.com:19302".
	URLs string `env:"STUN_URLS"`
}

type PushConfig struct {
	// WebhookURL is where incoming-call pushes are POSTed. Empty disables
	// the fallback path.
	WebhookURL string `env:"PUSH_WEBHOOK_URL"`
}

func New() (*Config, error) {
	c, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if c.Coturn.Host != "" {
		c.TurnServers = []webrtc.ICEServer{
			{
				URLs:       []string{fmt.Sprintf("turn:%s?transport=udp", c.Coturn.Host)},
				Username:   c.Coturn.Username,
				Credential: c.Coturn.Password,
			},
			{
				URLs:       []string{fmt.Sprintf("turn:%s?transport=tcp", c.Coturn.Host)},
				Username:   c.Coturn.Username,
				Credential: c.Coturn.Password,
			},
		}
	}

	for _, raw := range strings.Split(c.Stun.URLs, ",") {
		url := strings.TrimSpace(raw)
		if url == "" {
			continue
		}
		c.StunServers = append(c.StunServers, webrtc.ICEServer{URLs: []string{url}})
	}

	return &c, nil
}
