package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vpcreach/internal/domain"
	"vpcreach/internal/eval"
	"vpcreach/internal/ingest"
)

var (
	queryFile string
	logLevel  string
	logFile   string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vpcreach",
		Short: "Evaluate VPC network ACLs and security groups for reachability",
		Long: `vpcreach decides whether traffic from a source endpoint to a destination
endpoint would be permitted by the network ACLs and security groups
attached to each side. It evaluates already-materialized rule data from a
query document; it never queries a cloud provider.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&queryFile, "query", "", "Query document, YAML or JSON (required)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log file path (default: stderr)")
	rootCmd.MarkPersistentFlagRequired("query")

	rootCmd.AddCommand(newCheckCmd(), newNACLsCmd(), newSGsCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run the combined network ACL and security group verdict",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluation(func(q *domain.Query) (string, error) {
				verdict, err := eval.Evaluate(q)
				if err != nil {
					return "", err
				}
				return verdict.Message, nil
			})
		},
	}
}

func newNACLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nacls",
		Short: "Evaluate ingress and egress network ACLs only",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluation(func(q *domain.Query) (string, error) {
				if err := eval.EvalNetworkACLs(q); err != nil {
					return "", err
				}
				return eval.MsgNetworkACLsOK, nil
			})
		},
	}
}

func newSGsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sgs",
		Short: "Evaluate ingress and egress security group rules only",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluation(func(q *domain.Query) (string, error) {
				if err := eval.CheckSourceEgress(q); err != nil {
					return "", err
				}
				if err := eval.EvalSecurityGroups(q); err != nil {
					return "", err
				}
				return eval.MsgSecurityGroupsOK, nil
			})
		},
	}
}

// runEvaluation is the shared harness: decode the query document, run one
// evaluation, print exactly one message. A blocked flow or malformed input
// returns an error, which exits non-zero.
func runEvaluation(evaluate func(*domain.Query) (string, error)) error {
	logger := setupLogger(logLevel, logFile)
	slog.SetDefault(logger)

	data, err := os.ReadFile(queryFile)
	if err != nil {
		slog.Error("Failed to read query document", "path", queryFile, "error", err)
		return err
	}

	q, err := ingest.DecodeQuery(data)
	if err != nil {
		slog.Error("Failed to decode query document", "path", queryFile, "error", err)
		return err
	}

	slog.Debug("Query decoded",
		"src_ip", q.SrcIP, "src_subnet_id", q.SrcSubnetID,
		"dst_ip", q.DstIP, "dst_subnet_id", q.DstSubnetID, "dst_port", q.DstPort)

	message, err := evaluate(q)
	if err != nil {
		var blocked *domain.BlockingError
		if errors.As(err, &blocked) {
			slog.Error("Traffic blocked",
				"side", blocked.Side, "direction", blocked.Direction,
				"policy", blocked.Policy, "rule_number", blocked.RuleNumber)
		}
		return err
	}

	fmt.Println(message)
	return nil
}

func setupLogger(level, logFilePath string) *slog.Logger {
	var logWriter io.Writer = os.Stderr
	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			logWriter = f
		}
	}

	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "INFO":
		lvl = slog.LevelInfo
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(logWriter, &slog.HandlerOptions{Level: lvl}))
}
