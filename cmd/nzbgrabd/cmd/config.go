package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nzbgrab/nzbgrab/internal/nntp/nzbconfig"
)

// jsonServer mirrors nzbconfig.NewsServer with a config file's field names;
// it exists only so the config file can be hand-written JSON without
// fighting time.Duration's numeric-nanosecond JSON encoding.
type jsonServer struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
	TLS            bool   `json:"tls"`
	User           string `json:"user"`
	Pass           string `json:"pass"`
	Group          string `json:"group"`
	JoinGroup      bool   `json:"joinGroup"`
	Level          int    `json:"level"`
	MaxConnections int    `json:"maxConnections"`
	RetentionDays  int    `json:"retentionDays"`
	Active         bool   `json:"active"`
	Optional       bool   `json:"optional"`
	Cipher         string `json:"cipher"`
}

// jsonCore mirrors nzbconfig.Core for the config file, using human-readable
// duration strings ("90s") instead of raw nanosecond integers.
type jsonCore struct {
	Servers []jsonServer `json:"servers"`

	ArticleTimeout  string `json:"articleTimeout"`
	ArticleInterval string `json:"articleInterval"`
	ArticleRetries  int    `json:"articleRetries"`

	ArticleCache int64 `json:"articleCache"`
	WriteBuffer  int64 `json:"writeBuffer"`

	DirectWrite      bool   `json:"directWrite"`
	ContinuePartial  bool   `json:"continuePartial"`
	PropagationDelay string `json:"propagationDelay"`

	DupeCheck      bool   `json:"dupeCheck"`
	FileNaming     string `json:"fileNaming"`
	HealthCheck    string `json:"healthCheck"`
	CriticalHealth int    `json:"criticalHealth"`
	ParScan        bool   `json:"parScan"`

	UrlRetries  int    `json:"urlRetries"`
	UrlInterval string `json:"urlInterval"`
	UrlTimeout  string `json:"urlTimeout"`
}

// loadCoreConfig reads and validates a nzbconfig.Core from a JSON file.
func loadCoreConfig(path string) (*nzbconfig.Core, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var jc jsonCore
	if err := json.Unmarshal(data, &jc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg := &nzbconfig.Core{
		ArticleRetries:   jc.ArticleRetries,
		ArticleCache:     jc.ArticleCache,
		WriteBuffer:      jc.WriteBuffer,
		DirectWrite:      jc.DirectWrite,
		ContinuePartial:  jc.ContinuePartial,
		DupeCheck:        jc.DupeCheck,
		FileNaming:       nzbconfig.FileNaming(jc.FileNaming),
		HealthCheck:      nzbconfig.HealthCheckMode(jc.HealthCheck),
		CriticalHealth:   jc.CriticalHealth,
		ParScan:          jc.ParScan,
		UrlRetries:       jc.UrlRetries,
	}
	durations := []struct {
		text string
		dst  *time.Duration
	}{
		{jc.ArticleTimeout, &cfg.ArticleTimeout},
		{jc.ArticleInterval, &cfg.ArticleInterval},
		{jc.PropagationDelay, &cfg.PropagationDelay},
		{jc.UrlInterval, &cfg.UrlInterval},
		{jc.UrlTimeout, &cfg.UrlTimeout},
	}
	for _, d := range durations {
		if d.text == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.text)
		if err != nil {
			return nil, fmt.Errorf("config %s: invalid duration %q: %w", path, d.text, err)
		}
		*d.dst = parsed
	}

	for _, s := range jc.Servers {
		cfg.Servers = append(cfg.Servers, nzbconfig.NewsServer{
			ID: s.ID, Name: s.Name, Host: s.Host, Port: s.Port, TLS: s.TLS,
			User: s.User, Pass: s.Pass, Group: s.Group, JoinGroup: s.JoinGroup,
			Level: s.Level, MaxConnections: s.MaxConnections, RetentionDays: s.RetentionDays,
			Active: s.Active, Optional: s.Optional, Cipher: s.Cipher,
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
