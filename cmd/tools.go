package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"github.com/mcpjungle/mcpchat/internal/service/session"
	"github.com/mcpjungle/mcpchat/internal/tools"
	"github.com/mcpjungle/mcpchat/pkg/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	// AmapAPIKeyEnvVar holds the key of the weather forecast API used by the builtin weather tool.
	AmapAPIKeyEnvVar = "AMAP_API_KEY"

	// AreaCodeFileEnvVar is the path of the area code CSV used by the builtin weather tool.
	AreaCodeFileEnvVar = "AREA_CODE_FILE"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Run the builtin tool provider or inspect the tools of an MCP server",
	Annotations: map[string]string{
		"group": string(subCommandGroupAdvanced),
		"order": "1",
	},
}

var toolsServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the builtin time and weather tools as a stdio MCP server",
	Long: "Serves the get_current_time and get_area_weather tools over stdio.\n\n" +
		"The weather tool reads its API key from the " + AmapAPIKeyEnvVar + " environment variable and\n" +
		"the area code CSV from the file named by " + AreaCodeFileEnvVar + " (default " + tools.DefaultAreaCodeFile + ").\n" +
		"'mcpchat chat builtin' starts this server automatically.",
	Args: cobra.NoArgs,
	RunE: runToolsServe,
}

var toolsListCmd = &cobra.Command{
	Use:   "list <target>",
	Short: "List the tools published by an MCP server",
	Args:  cobra.ExactArgs(1),
	RunE:  runToolsList,
}

func init() {
	toolsCmd.AddCommand(toolsServeCmd)
	toolsCmd.AddCommand(toolsListCmd)
	rootCmd.AddCommand(toolsCmd)
}

func runToolsServe(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	weather := tools.NewWeather(tools.WeatherConfig{
		AreaCodeFile: os.Getenv(AreaCodeFileEnvVar),
		APIKey:       os.Getenv(AmapAPIKeyEnvVar),
		Logger:       logger,
	})
	s := tools.NewServer(&tools.Clock{}, weather)

	// stdout carries the protocol, so all diagnostics go to the logger
	if err := server.ServeStdio(s, server.WithErrorLogger(zap.NewStdLog(logger))); err != nil {
		return fmt.Errorf("builtin tool provider stopped: %w", err)
	}
	return nil
}

func runToolsList(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	target, err := resolveTarget(args[0])
	if err != nil {
		return err
	}

	s, err := session.Open(cmd.Context(), &session.Config{
		Target:         target,
		Env:            c.ProviderEnvList(),
		BearerToken:    c.ProviderToken,
		Headers:        c.ProviderHeaders,
		InitReqTimeout: c.InitTimeout(),
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("failed to close tool provider session", zap.Error(err))
		}
	}()

	discovered := s.Tools()
	if len(discovered) == 0 {
		cmd.Println("There are no tools published by this MCP server")
		return nil
	}
	for i, t := range discovered {
		if i > 0 {
			cmd.Println()
		}
		printToolUsage(cmd, t)
	}
	return nil
}

// printToolUsage prints the name, description and input parameters of a tool.
func printToolUsage(cmd *cobra.Command, t types.Tool) {
	cmd.Println(t.Name)
	cmd.Println(t.Description)

	if len(t.InputSchema.Properties) == 0 {
		cmd.Println("This tool does not require any input parameters.")
		return
	}

	params := make([]string, 0, len(t.InputSchema.Properties))
	for k := range t.InputSchema.Properties {
		params = append(params, k)
	}
	sort.Strings(params)

	cmd.Println()
	cmd.Println("Input Parameters:")
	for _, k := range params {
		requiredOrOptional := "optional"
		if slices.Contains(t.InputSchema.Required, k) {
			requiredOrOptional = "required"
		}

		boundary := strings.Repeat("=", len(k)+len(requiredOrOptional)+20)

		cmd.Println(boundary)
		cmd.Printf("%s (%s)\n", k, requiredOrOptional)

		j, err := json.MarshalIndent(t.InputSchema.Properties[k], "", "  ")
		if err != nil {
			// Simply print the raw object if we fail to marshal it
			cmd.Println(t.InputSchema.Properties[k])
		} else {
			cmd.Println(string(j))
		}
		cmd.Println(boundary)
	}
}
