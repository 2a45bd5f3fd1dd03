package cmd

import (
	"errors"
	"fmt"

	"github.com/mcpjungle/mcpchat/internal/model"
	"github.com/spf13/cobra"
)

var (
	auditListCmdTool  string
	auditListCmdLimit int
	auditListCmdRound string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the tool invocation audit log",
	Long: "mcpchat records every tool call made during a chat in the audit log when audit_db is configured.\n" +
		"These commands read the same database.",
	Annotations: map[string]string{
		"group": string(subCommandGroupAdvanced),
		"order": "2",
	},
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded tool invocations, newest first",
	Args:  cobra.NoArgs,
	RunE:  runAuditList,
}

func init() {
	auditListCmd.Flags().StringVar(&auditListCmdTool, "tool", "", "only list invocations of this tool")
	auditListCmd.Flags().IntVar(&auditListCmdLimit, "limit", 0, "maximum number of invocations to list (default 50)")
	auditListCmd.Flags().StringVar(
		&auditListCmdRound,
		"round",
		"",
		"list the invocations of a single round in the order they were made",
	)

	auditCmd.AddCommand(auditListCmd)
	rootCmd.AddCommand(auditCmd)
}

func runAuditList(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if c.AuditDB == "" {
		return errors.New("audit log is not configured, set audit_db or --audit-db")
	}

	auditService, err := openAuditLog(c)
	if err != nil {
		return err
	}
	defer func() { _ = auditService.Close() }()

	var records []model.ToolInvocation
	if auditListCmdRound != "" {
		records, err = auditService.ListRound(auditListCmdRound)
	} else {
		records, err = auditService.ListInvocations(auditListCmdTool, auditListCmdLimit)
	}
	if err != nil {
		return err
	}

	printInvocations(cmd, records)
	return nil
}

func printInvocations(cmd *cobra.Command, records []model.ToolInvocation) {
	if len(records) == 0 {
		cmd.Println("There are no tool invocations in the audit log")
		return
	}
	for i, r := range records {
		cmd.Printf("%d. %s  %s  %s (%dms)\n", i+1, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Tool, r.Outcome, r.DurationMs)
		cmd.Printf("   round: %s  call: %s\n", r.RoundID, r.CallID)
		if len(r.Arguments) > 0 {
			cmd.Printf("   arguments: %s\n", string(r.Arguments))
		}
		if r.Error != "" {
			cmd.Printf("   error: %s\n", r.Error)
		} else if len(r.Output) > 0 {
			cmd.Printf("   output: %s\n", truncate(string(r.Output), 200))
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return fmt.Sprintf("%s...", string(r[:n]))
}
