package main

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"leaflens/internal/config"
	"leaflens/internal/daemonrun"
	"leaflens/internal/logging"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool
	localFlag  *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag, localFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
		localFlag:  localFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(c.configFlagValue())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

func (c *commandContext) configFlagValue() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// withBackend runs fn against the daemon API when a daemon is running, or
// against an in-process runtime otherwise.
func (c *commandContext) withBackend(cmd *cobra.Command, fn func(scanBackend) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if base, ok := c.daemonBaseURL(cfg); ok {
		return fn(newRemoteBackend(base, cfg.Paths.APIToken))
	}

	rt, err := daemonrun.Build(cmd.Context(), cfg, cliLogger(cmd, cfg))
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(&localBackend{controller: rt.Controller})
}

// daemonBaseURL reports the API address of a running daemon. --local, a
// missing pid file, or an empty api_bind all mean in-process.
func (c *commandContext) daemonBaseURL(cfg *config.Config) (string, bool) {
	if c.localFlag != nil && *c.localFlag {
		return "", false
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return "", false
	}
	pid := daemonrun.ReadPID(cfg)
	if pid <= 0 || unix.Kill(pid, 0) != nil {
		return "", false
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return "", false
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), true
}

func (c *commandContext) daemonRunning() bool {
	cfg, err := c.ensureConfig()
	if err != nil {
		return false
	}
	_, ok := c.daemonBaseURL(cfg)
	return ok
}

func cliLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	logger, err := logging.New(logging.Options{
		Level:       "warn",
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warn: %v\n", err)
		return logging.NewNop()
	}
	return logger
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
