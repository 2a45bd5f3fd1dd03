// Package cmd implements the mcpchat command line interface.
package cmd

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mcpjungle/mcpchat/internal/config"
	"github.com/mcpjungle/mcpchat/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// subCommandGroup is the heading a sub-command is listed under in the root help output.
type subCommandGroup string

const (
	subCommandGroupBasic    subCommandGroup = "Basic Commands"
	subCommandGroupAdvanced subCommandGroup = "Advanced Commands"
)

// DotEnvFile is loaded into the environment before the configuration is read.
const DotEnvFile = ".env"

var rootCmdConfigFile string

var rootCmd = &cobra.Command{
	Use:   "mcpchat",
	Short: "Chat with a language model that can call the tools of an MCP server",
	Long: "mcpchat connects an OpenAI-compatible chat completion API to the tools published by an MCP tool provider.\n\n" +
		"Settings are read from mcpchat.yaml (or --config), a .env file, environment variables and flags.\n" +
		"The API key, base url and model are also read from OPENAI_API_KEY, OPENAI_API_BASE_URL and MODEL.",
	SilenceUsage: true,
}

func init() {
	cobra.AddTemplateFunc("groupedCommands", groupedCommands)
	rootCmd.SetUsageTemplate(rootUsageTemplate)

	f := rootCmd.PersistentFlags()
	f.StringVar(&rootCmdConfigFile, "config", "", "path to the config file (default ./mcpchat.yaml)")
	f.BoolP("verbose", "v", false, "enable debug logs")
	f.String("model", "", "name of the chat model (overrides env var MODEL)")
	f.String("base-url", "", "base url of the OpenAI-compatible API (overrides env var OPENAI_API_BASE_URL)")
	f.Int("init-timeout-sec", config.DefaultInitTimeoutSec, "seconds to wait for the tool provider to initialize")
	f.Int("tool-timeout-sec", config.DefaultToolTimeoutSec, "seconds to wait for a single tool call")
	f.Int(
		"completion-timeout-sec",
		config.DefaultCompletionTimeoutSec,
		"seconds to wait for a single completion call",
	)
	f.Bool("strict-args", false, "validate tool arguments against the tool's input schema before calling it")
	f.Bool(
		"trim-undispatched-calls",
		false,
		"send back only the dispatched tool call when the model requests several in one reply",
	)
	f.String("audit-db", "", "DSN of the tool invocation audit log, a sqlite file path or a postgres:// url")
	f.String("metrics-port", "", "port to serve health, metrics and tool information on while chatting")
}

// Execute runs the root command and exits the process with a non-zero status on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the effective configuration for the command being run.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	c, err := config.Load(config.LoadOptions{
		ConfigFile: rootCmdConfigFile,
		DotEnvFile: DotEnvFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return c, nil
}

// newLogger creates the logger for a command run.
func newLogger(c *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(c.Verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

const rootUsageTemplate = `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if .HasAvailableSubCommands}}
{{groupedCommands .}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`

// groupedCommands lists the available sub-commands under their group heading, ordered by the
// "order" annotation. Sub-commands without a group are listed under "Additional Commands".
func groupedCommands(cmd *cobra.Command) string {
	groups := map[string][]*cobra.Command{}
	for _, c := range cmd.Commands() {
		if !c.IsAvailableCommand() {
			continue
		}
		g := c.Annotations["group"]
		if g == "" {
			g = "Additional Commands"
		}
		groups[g] = append(groups[g], c)
	}

	order := []string{string(subCommandGroupBasic), string(subCommandGroupAdvanced), "Additional Commands"}
	var b strings.Builder
	for _, g := range order {
		cmds := groups[g]
		if len(cmds) == 0 {
			continue
		}
		sort.SliceStable(cmds, func(i, j int) bool {
			return commandOrder(cmds[i]) < commandOrder(cmds[j])
		})
		b.WriteString("\n" + g + ":\n")
		for _, c := range cmds {
			fmt.Fprintf(&b, "  %-*s %s\n", cmd.NamePadding(), c.Name(), c.Short)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func commandOrder(c *cobra.Command) int {
	n, err := strconv.Atoi(c.Annotations["order"])
	if err != nil {
		return 1 << 20
	}
	return n
}
