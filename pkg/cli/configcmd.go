package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var configCommand = &cli.Command{
	Name:  "config",
	Usage: "Print the effective configuration with secrets masked",
	Description: `Shows the configuration after the config file, the env file, the
environment and global flags are applied. Exits non-zero when it is invalid.`,
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(cfg.Redacted())
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		_, err = c.App.Writer.Write(out)
		return err
	},
}
