package hooks

import (
	"fmt"
	"time"
)

// DefaultTimeout bounds a script run when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Config captures hook settings from readr.ini.
type Config struct {
	ScriptPath string            `json:"script_path"`
	ScriptArgs []string          `json:"script_args"`
	Env        map[string]string `json:"env"`
	Timeout    time.Duration     `json:"timeout"`
}

// Enabled reports whether a script is configured.
func (c Config) Enabled() bool { return c.ScriptPath != "" }

// Validate rejects a negative timeout.
func (c Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("hooks: timeout must not be negative")
	}
	return nil
}

// BuildDispatcher returns a Dispatcher running the configured script, or nil
// when no script is configured.
func (c Config) BuildDispatcher() *Dispatcher {
	if !c.Enabled() {
		return nil
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	d := &Dispatcher{}
	d.Register(NewScriptHandler(ScriptConfig{
		Command: c.ScriptPath,
		Args:    c.ScriptArgs,
		Env:     c.Env,
		Timeout: timeout,
	}))
	return d
}
