// Package app wires the agent together behind a small CLI: an interactive
// chat loop plus direct query commands for pools, balances and portfolio.
package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kaiwenluo/suilend-agent/internal/agent"
	"github.com/kaiwenluo/suilend-agent/internal/config"
	agerr "github.com/kaiwenluo/suilend-agent/internal/errors"
	"github.com/kaiwenluo/suilend-agent/internal/httpx"
	"github.com/kaiwenluo/suilend-agent/internal/llm"
	"github.com/kaiwenluo/suilend-agent/internal/navi"
	"github.com/kaiwenluo/suilend-agent/internal/ops"
	"github.com/kaiwenluo/suilend-agent/internal/snapshot"
	"github.com/kaiwenluo/suilend-agent/internal/tx"
	"github.com/kaiwenluo/suilend-agent/internal/version"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
}

func NewRunner() *Runner {
	return NewRunnerWithStreams(os.Stdin, os.Stdout, os.Stderr)
}

func NewRunnerWithStreams(stdin io.Reader, stdout, stderr io.Writer) *Runner {
	return &Runner{stdin: stdin, stdout: stdout, stderr: stderr}
}

type runtimeState struct {
	runner   *Runner
	flags    config.GlobalFlags
	settings config.Settings
	log      zerolog.Logger

	store        *snapshot.Store
	cache        *navi.PoolCache
	service      *ops.Service
	orchestrator *agent.Orchestrator
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	if state.store != nil {
		_ = state.store.Close()
	}
	if err == nil {
		return 0
	}
	fmt.Fprintln(r.stderr, "error:", err)
	return agerr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.AppName,
		Short: "Natural-language agent for Sui lending operations",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return agerr.Wrap(agerr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			s.log = newLogger(s.runner.stderr, settings.Verbose)
			return s.wire(cmd.Context())
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return agerr.Wrap(agerr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.Network, "network", "", "Sui network (mainnet, testnet, devnet)")
	cmd.PersistentFlags().StringVar(&s.flags.RPCURL, "rpc-url", "", "Sui JSON-RPC endpoint")
	cmd.PersistentFlags().StringVar(&s.flags.Address, "address", "", "Wallet address for the session")
	cmd.PersistentFlags().StringVar(&s.flags.Model, "model", "", "Chat model name")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "RPC request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per RPC request")
	cmd.PersistentFlags().BoolVar(&s.flags.NoSnapshot, "no-snapshot", false, "Disable the persisted pool snapshot")
	cmd.PersistentFlags().BoolVarP(&s.flags.Verbose, "verbose", "v", false, "Debug logging")

	cmd.AddCommand(s.newChatCommand())
	cmd.AddCommand(s.newPoolsCommand())
	cmd.AddCommand(s.newBalanceCommand())
	cmd.AddCommand(s.newPortfolioCommand())
	cmd.AddCommand(newVersionCommand(s.runner.stdout))
	return cmd
}

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w}).Level(level).With().Timestamp().Logger()
}

// wire builds the collaborator graph once per invocation.
func (s *runtimeState) wire(ctx context.Context) error {
	httpClient := httpx.New(s.settings.Timeout, s.settings.Retries)
	env := navi.EnvForNetwork(s.settings.Network)

	lending := navi.NewLendingClient(httpClient, env)
	if s.settings.LendingEndpoint != "" {
		lending.SetEndpoint(s.settings.LendingEndpoint)
	}
	chain := navi.NewSuiClient(httpClient, s.settings.RPCURL)

	cacheOpts := []navi.PoolCacheOption{
		navi.WithTTL(s.settings.PoolTTL),
		navi.WithLogger(s.log),
	}
	if s.settings.SnapshotEnabled {
		store, err := snapshot.Open(s.settings.SnapshotPath, s.settings.SnapshotLock)
		if err != nil {
			s.log.Warn().Err(err).Msg("pool snapshot unavailable, running without it")
		} else {
			s.store = store
			cacheOpts = append(cacheOpts, navi.WithSnapshotStore(store))
		}
	}
	s.cache = navi.NewPoolCache(lending, cacheOpts...)
	s.cache.Warm(ctx)

	// The CLI has no wallet adapter; transactions are assembled and
	// dry-run signed so every flow is exercised end to end.
	s.service = ops.NewService(s.cache, chain, lending, navi.NewMoveCallBuilder(env), tx.DryRunSigner{}).
		WithLogger(s.log)

	model := llm.NewOpenAI(s.settings.ModelAPIKey, s.settings.ModelBaseURL, s.settings.ModelName).
		WithLogger(s.log)
	s.orchestrator = agent.New(model, s.service).WithLogger(s.log)
	return nil
}

func (s *runtimeState) session() agent.Session {
	return agent.Session{
		WalletConnected: s.settings.WalletAddress != "",
		Address:         s.settings.WalletAddress,
	}
}

func (s *runtimeState) newChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation with the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.settings.ModelAPIKey == "" {
				return agerr.New(agerr.CodeUsage, "no model API key configured (set SUILEND_API_KEY)")
			}
			fmt.Fprintln(s.runner.stdout, "Connected. Type your request, or /quit to leave.")

			var history []llm.Message
			scanner := bufio.NewScanner(s.runner.stdin)
			for {
				fmt.Fprint(s.runner.stdout, "> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "/quit" || line == "/exit" {
					return nil
				}

				history = append(history, llm.Message{Role: llm.RoleUser, Content: line})
				reply, err := s.orchestrator.Handle(cmd.Context(), s.session(), history)
				if err != nil {
					s.log.Error().Err(err).Msg("turn failed")
					fmt.Fprintln(s.runner.stdout, "Sorry, that request failed. Please try again.")
					continue
				}
				history = append(history, llm.Message{Role: llm.RoleAssistant, Content: reply})
				fmt.Fprintln(s.runner.stdout, reply)
			}
		},
	}
}

func (s *runtimeState) newPoolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pools",
		Short: "List the lending pools",
		RunE: func(cmd *cobra.Command, args []string) error {
			summaries, err := s.service.Pools(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(s.runner.stdout, summaries)
		},
	}
}

func (s *runtimeState) newBalanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <symbol>",
		Short: "Show the wallet's balance of one asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := s.service.Balance(cmd.Context(), s.settings.WalletAddress, args[0])
			if err != nil {
				return err
			}
			return writeJSON(s.runner.stdout, map[string]string{
				"symbol":  result.Symbol,
				"balance": result.Display,
				"units":   result.Units.String(),
			})
		},
	}
}

func (s *runtimeState) newPortfolioCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio",
		Short: "Show the wallet's supply and borrow positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			positions, err := s.service.Portfolio(cmd.Context(), s.settings.WalletAddress)
			if err != nil {
				return err
			}
			return writeJSON(s.runner.stdout, positions)
		},
	}
}

func newVersionCommand(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(out, version.AppName, version.Long())
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
