// Package nzbconfig defines the typed configuration the core is handed at
// construction time. It never reads a config file or environment variable
// itself — that is an external collaborator's job (spec.md §1) — it only
// validates and exposes sane defaults for what it is given, replacing the
// C++ globals (g_Options, g_WorkState, g_ArticleCache) named in the
// REDESIGN FLAGS with one explicit struct.
package nzbconfig

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Defaults for options a caller may leave zero-valued.
const (
	DefaultArticleTimeout  = 90 * time.Second
	DefaultArticleInterval = 10 * time.Second
	DefaultArticleRetries  = 3
	DefaultArticleCache    = 256 << 20 // 256MiB
	DefaultWriteBuffer     = 1 << 20   // 1MiB
	DefaultUrlRetries      = 3
	DefaultUrlInterval     = 5 * time.Second
	DefaultUrlTimeout      = 60 * time.Second
	DefaultCriticalHealth  = 500 // permille
)

// FileNaming selects how a FileInfo's display name is chosen.
type FileNaming string

const (
	FileNamingNzb     FileNaming = "nzb"
	FileNamingArticle FileNaming = "article"
	FileNamingAuto    FileNaming = "auto"
)

// HealthCheckMode selects what happens when a NzbInfo's health drops below
// CriticalHealth.
type HealthCheckMode string

const (
	HealthCheckNone   HealthCheckMode = "none"
	HealthCheckPause  HealthCheckMode = "pause"
	HealthCheckDelete HealthCheckMode = "delete"
	HealthCheckPark   HealthCheckMode = "park"
)

// NewsServer is one configured news server (spec.md §3).
type NewsServer struct {
	ID             int    `validate:"required"`
	Name           string `validate:"required"`
	Host           string `validate:"required,hostname_port|hostname|ip"`
	Port           int    `validate:"required,min=1,max=65535"`
	TLS            bool
	User           string
	Pass           string
	Group          string // newsgroup to JOIN before BODY, when JoinGroup is set
	JoinGroup      bool
	Level          int `validate:"min=0"`
	MaxConnections int `validate:"required,min=1"`
	RetentionDays  int `validate:"min=0"`
	Active         bool
	Optional       bool
	Cipher         string
}

// Core is the explicit context object that replaces the ambient globals the
// original implementation relied on. It is constructed once by the caller
// and passed by reference into every component constructor.
type Core struct {
	Servers []NewsServer `validate:"required,dive"`

	ArticleTimeout  time.Duration
	ArticleInterval time.Duration
	ArticleRetries  int

	ArticleCache int64
	WriteBuffer  int64

	DirectWrite     bool
	ContinuePartial bool
	PropagationDelay time.Duration

	DupeCheck   bool
	FileNaming  FileNaming
	HealthCheck HealthCheckMode
	CriticalHealth int // permille
	ParScan     bool

	UrlRetries  int
	UrlInterval time.Duration
	UrlTimeout  time.Duration
}

var validate = validator.New()

// Validate checks structural invariants and fills in documented defaults for
// zero-valued duration/size fields. It does not touch any file or env var.
func (c *Core) Validate() error {
	if c.ArticleTimeout == 0 {
		c.ArticleTimeout = DefaultArticleTimeout
	}
	if c.ArticleInterval == 0 {
		c.ArticleInterval = DefaultArticleInterval
	}
	if c.ArticleRetries == 0 {
		c.ArticleRetries = DefaultArticleRetries
	}
	if c.ArticleCache == 0 {
		c.ArticleCache = DefaultArticleCache
	}
	if c.WriteBuffer == 0 {
		c.WriteBuffer = DefaultWriteBuffer
	}
	if c.UrlRetries == 0 {
		c.UrlRetries = DefaultUrlRetries
	}
	if c.UrlInterval == 0 {
		c.UrlInterval = DefaultUrlInterval
	}
	if c.UrlTimeout == 0 {
		c.UrlTimeout = DefaultUrlTimeout
	}
	if c.CriticalHealth == 0 {
		c.CriticalHealth = DefaultCriticalHealth
	}
	if c.FileNaming == "" {
		c.FileNaming = FileNamingAuto
	}
	if c.HealthCheck == "" {
		c.HealthCheck = HealthCheckNone
	}

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid core config: %w", err)
	}
	for i := range c.Servers {
		if err := validate.Struct(&c.Servers[i]); err != nil {
			return fmt.Errorf("invalid server config (id=%d): %w", c.Servers[i].ID, err)
		}
	}
	return nil
}

// ServersAtLevel returns the active servers configured at the given tier.
func (c *Core) ServersAtLevel(level int) []NewsServer {
	var out []NewsServer
	for _, s := range c.Servers {
		if s.Level == level && s.Active {
			out = append(out, s)
		}
	}
	return out
}

// MaxLevel returns the highest configured server tier.
func (c *Core) MaxLevel() int {
	max := 0
	for _, s := range c.Servers {
		if s.Level > max {
			max = s.Level
		}
	}
	return max
}
