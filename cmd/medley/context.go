package main

import (
	"os/user"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"medley/internal/config"
)

type commandContext struct {
	apiFlag     *string
	tokenFlag   *string
	subjectFlag *string
	configFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(apiFlag, tokenFlag, subjectFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:     apiFlag,
		tokenFlag:   tokenFlag,
		subjectFlag: subjectFlag,
		configFlag:  configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// client builds the API client from flags, falling back to config values.
func (c *commandContext) client() (*apiClient, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	base := strings.TrimSpace(*c.apiFlag)
	if base == "" {
		base = "http://" + cfg.Paths.APIBind
	}
	token := strings.TrimSpace(*c.tokenFlag)
	if token == "" {
		token = cfg.Paths.APIToken
	}
	subject := strings.TrimSpace(*c.subjectFlag)
	if subject == "" {
		subject = currentUser()
	}
	return newAPIClient(base, token, subject), nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "medley-cli"
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
