package cmd

import (
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: "Prints the configuration mcpchat would run with, after merging the config file, .env file,\n" +
		"environment variables and flags. Secrets are redacted.",
	Args: cobra.NoArgs,
	RunE: runConfig,
	Annotations: map[string]string{
		"group": string(subCommandGroupAdvanced),
		"order": "3",
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out, err := c.YAML()
	if err != nil {
		return err
	}
	cmd.Print(string(out))
	return nil
}
