package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/k0kubun/pp"
	"github.com/mcpjungle/mcpchat/internal/api"
	"github.com/mcpjungle/mcpchat/internal/config"
	"github.com/mcpjungle/mcpchat/internal/db"
	"github.com/mcpjungle/mcpchat/internal/llm"
	"github.com/mcpjungle/mcpchat/internal/migrations"
	"github.com/mcpjungle/mcpchat/internal/service/audit"
	"github.com/mcpjungle/mcpchat/internal/service/conversation"
	"github.com/mcpjungle/mcpchat/internal/service/dispatch"
	"github.com/mcpjungle/mcpchat/internal/service/registry"
	"github.com/mcpjungle/mcpchat/internal/service/session"
	"github.com/mcpjungle/mcpchat/internal/telemetry"
	"github.com/mcpjungle/mcpchat/pkg/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	// QuitKeyword ends the interactive chat. It is matched case-insensitively.
	QuitKeyword = "quit"

	chatPrompt = ": "

	shutdownTimeout = 5 * time.Second
)

var errorText = color.New(color.FgRed).SprintFunc()

var chatCmd = &cobra.Command{
	Use:   "chat <target>",
	Short: "Start an interactive chat with access to the tools of an MCP server",
	Long: "Connects to the MCP tool provider named by <target> and starts an interactive chat.\n\n" +
		"The target can be:\n" +
		"  - a python (.py) or node (.js) script, run as a stdio MCP server\n" +
		"  - an executable, run as a stdio MCP server\n" +
		"  - an http:// or https:// url of a streamable http MCP server\n" +
		"  - 'builtin', which runs mcpchat's own time and weather tools\n\n" +
		"Each query may lead to at most one tool call. Type 'quit' to exit.",
	Args: cobra.ExactArgs(1),
	RunE: runChat,
	Annotations: map[string]string{
		"group": string(subCommandGroupBasic),
		"order": "1",
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// Asker answers a single user query.
type Asker interface {
	Ask(ctx context.Context, query string) (string, error)
}

func runChat(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	target, err := resolveTarget(args[0])
	if err != nil {
		return err
	}

	otelProviders, err := telemetry.Init("mcpchat", c.MetricsPort != "")
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shut down telemetry", zap.Error(err))
		}
	}()
	metrics, err := otelProviders.NewCustomMetrics()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	s, err := session.Open(ctx, &session.Config{
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

	reg := registry.Build(s.Tools())
	if dups := reg.Duplicates(); len(dups) > 0 {
		logger.Warn("tool provider published duplicate tool names, the first one of each is used",
			zap.Strings("tools", dups),
		)
	}

	auditService, err := openAuditLog(c)
	if err != nil {
		return err
	}
	if auditService != nil {
		defer func() {
			if err := auditService.Close(); err != nil {
				logger.Warn("failed to close audit log", zap.Error(err))
			}
		}()
	}

	completer, err := llm.NewClient(&llm.Config{
		BaseURL: c.BaseURL,
		APIKey:  c.APIKey,
		Model:   c.Model,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}

	dispatchCfg := &dispatch.Config{
		Registry:        reg,
		Invoker:         s,
		Metrics:         metrics,
		Logger:          logger,
		Provider:        s.Provider(),
		CallTimeout:     c.ToolTimeout(),
		StrictArguments: c.StrictArgs,
	}
	if auditService != nil {
		dispatchCfg.Recorder = auditService
	}
	dispatcher, err := dispatch.New(dispatchCfg)
	if err != nil {
		return fmt.Errorf("failed to create tool dispatcher: %w", err)
	}

	out := cmd.OutOrStdout()
	engine, err := conversation.New(&conversation.Config{
		Completer:             completer,
		Dispatcher:            dispatcher,
		Tools:                 reg.Schemas(),
		SystemPrompt:          c.SystemPrompt,
		FollowUpSystemPrompt:  c.FollowUpSystemPrompt,
		CompletionTimeout:     c.CompletionTimeout(),
		TrimUndispatchedCalls: c.TrimUndispatchedCalls,
		Observer:              &chatObserver{out: out},
		Logger:                logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create conversation engine: %w", err)
	}

	if c.MetricsPort != "" {
		srv, err := api.NewServer(&api.ServerOptions{
			Port:          c.MetricsPort,
			Provider:      s.Provider(),
			Model:         completer.Model(),
			Registry:      reg,
			AuditService:  auditService,
			OtelProviders: otelProviders,
			Logger:        logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create http server: %w", err)
		}
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("http server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("failed to shut down http server", zap.Error(err))
			}
		}()
	}

	printBanner(out, reg.Names(), completer)
	return runChatLoop(ctx, cmd.InOrStdin(), out, engine)
}

// resolveTarget turns the positional argument into a tool provider target.
func resolveTarget(raw string) (*types.ProviderTarget, error) {
	selfExe, err := os.Executable()
	if err != nil {
		// only needed by the builtin target, ResolveProviderTarget reports it if so
		selfExe = ""
	}
	target, err := types.ResolveProviderTarget(raw, selfExe)
	if err != nil {
		return nil, fmt.Errorf("invalid tool provider target: %w", err)
	}
	return target, nil
}

// openAuditLog opens the invocation audit log, or returns nil if auditing is disabled.
func openAuditLog(c *config.Config) (*audit.AuditService, error) {
	if c.AuditDB == "" {
		return nil, nil
	}
	dbConn, err := db.NewDBConnection(c.AuditDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	auditService, err := audit.NewAuditService(dbConn)
	if err != nil {
		return nil, err
	}
	if err := migrations.Migrate(dbConn); err != nil {
		_ = auditService.Close()
		return nil, fmt.Errorf("failed to migrate audit log database: %w", err)
	}
	return auditService, nil
}

func printBanner(out io.Writer, toolNames []string, completer *llm.Client) {
	fmt.Fprintln(out, "Connected to tool provider with tools:", strings.Join(toolNames, ", "))
	fmt.Fprintln(out, "API_BASE_URL:", completer.Endpoint())
	fmt.Fprintln(out, "MODEL:", completer.Model())
	fmt.Fprintf(out, "Type your queries or '%s' to exit.\n", QuitKeyword)
}

// runChatLoop reads queries from in until the quit keyword, end of input or cancellation of ctx.
// A failed query is reported and the loop continues with the next one.
func runChatLoop(ctx context.Context, in io.Reader, out io.Writer, asker Asker) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(out, chatPrompt)

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("failed to read query: %w", err)
					}
				default:
				}
				return nil
			}
			line = l
		}

		query := strings.TrimSpace(line)
		if query == "" {
			continue
		}
		if strings.EqualFold(query, QuitKeyword) {
			return nil
		}

		reply, err := asker.Ask(ctx, query)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(out, errorText("- error: "+err.Error()))
			continue
		}
		fmt.Fprintln(out, reply)
	}
}

// chatObserver shows tool activity to the user while a query is being answered.
type chatObserver struct {
	out io.Writer
}

func (o *chatObserver) ToolRequested(_ context.Context, call types.ToolCall) {
	fmt.Fprintf(o.out, "[calling tool %s]\n", call.Name)
	if strings.TrimSpace(call.Arguments) == "" {
		return
	}
	var args any
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		fmt.Fprintln(o.out, call.Arguments)
		return
	}
	_, _ = pp.Fprintln(o.out, args)
}

func (o *chatObserver) ToolFinished(_ context.Context, result dispatch.Result) {
	status := "ok"
	if !result.OK {
		status = "failed"
	}
	fmt.Fprintf(o.out, "[tool %s %s in %s]\n", result.Tool, status, result.Elapsed.Round(time.Millisecond))
}
