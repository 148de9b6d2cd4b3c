package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mugen-ai/mugen/internal/printer"
	"github.com/mugen-ai/mugen/internal/report"
	"github.com/mugen-ai/mugen/internal/supervisor"
	"github.com/mugen-ai/mugen/internal/watch"
	"github.com/mugen-ai/mugen/internal/workflow"
	"github.com/mugen-ai/mugen/pkg/coord"
	"github.com/spf13/cobra"
)

var (
	shellInstanceName string
	shellWorkspace    string
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive multi-agent session",
	Long: `Open an interactive session against a running instance.

One supervisor is started for the whole session. Agents spawned here
survive between commands; solves still spawn and tear down their own
agents.

Commands:
  solve <problem>  - Run the explore/plan/execute workflow
  status           - Show agent status
  spawn <role>     - Spawn a new agent (explorer/planner/executor or custom)
  state [key]      - Show shared state (all keys, or one entry)
  quit             - Shut down agents and exit

Ctrl+C or end-of-input behaves like quit.`,
	RunE: runShell,
}

func init() {
	shellCmd.Flags().StringVarP(&shellInstanceName, "name", "n", "", "Target instance name (auto-inferred if omitted)")
	shellCmd.Flags().StringVar(&shellWorkspace, "workspace", "", "Directory agents work in (default: current directory)")
	rootCmd.AddCommand(shellCmd)
}

// shellSession carries what every shell command needs: the connection, the
// session-long supervisor and the workspace agents operate on.
type shellSession struct {
	conn      *connection
	sup       *supervisor.Supervisor
	workspace string
}

func runShell(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	workspace := shellWorkspace
	if workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		workspace = wd
	}
	workspace, err := filepath.Abs(workspace)
	if err != nil {
		return fmt.Errorf("failed to resolve workspace path: %w", err)
	}

	conn, err := connectToInstance(ctx, shellInstanceName)
	if err != nil {
		return err
	}
	defer conn.Close()

	cfg, err := loadWorkspaceConfig(workspace)
	if err != nil {
		return err
	}

	sup := supervisor.New(conn.Client, cfg, conn.RedisURL, workspace)
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("failed to start supervisor: %w", err)
	}
	defer sup.Stop(context.Background())

	session := &shellSession{conn: conn, sup: sup, workspace: workspace}

	printer.Println("Mugen interactive shell")
	printer.Printf("Instance: %s  Workspace: %s\n\n", conn.InstanceName, workspace)
	printer.Println("Commands:")
	printer.Println("  solve <problem>  - Run the explore/plan/execute workflow")
	printer.Println("  status           - Show agent status")
	printer.Println("  spawn <role>     - Spawn a new agent")
	printer.Println("  state [key]      - Show shared state")
	printer.Println("  quit             - Shut down agents and exit")
	printer.Println()

	// Stdin is read on its own goroutine so Ctrl+C can interrupt a wait
	// for input and still run the quit path
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		fmt.Print("> ")

		select {
		case sig := <-sigCh:
			printer.Warning("\nReceived %v, shutting down...\n", sig)
			return session.quit(ctx)

		case line, ok := <-lines:
			if !ok {
				printer.Println()
				return session.quit(ctx)
			}

			input := strings.TrimSpace(line)
			if input == "" {
				continue
			}

			parts := strings.SplitN(input, " ", 2)
			command := strings.ToLower(parts[0])
			arg := ""
			if len(parts) > 1 {
				arg = strings.TrimSpace(parts[1])
			}

			if command == "quit" || command == "exit" {
				return session.quit(ctx)
			}
			session.dispatch(ctx, command, arg)
		}
	}
}

func (s *shellSession) dispatch(ctx context.Context, command, arg string) {
	switch command {
	case "solve":
		if arg == "" {
			printer.Failure("Usage: solve <problem>\n")
			return
		}
		s.solve(ctx, arg)

	case "status":
		if err := report.ListAgents(ctx, s.conn.Client, nil, report.OutputFormatDefault, os.Stdout); err != nil {
			printer.Failure("%v\n", err)
		}

	case "spawn":
		if arg == "" {
			printer.Failure("Usage: spawn <role>\n")
			return
		}
		s.spawn(ctx, arg)

	case "state":
		s.state(ctx, arg)

	case "help":
		printer.Println("Commands: solve <problem>, status, spawn <role>, state [key], quit")

	default:
		printer.Failure("Unknown command: %s (try 'help')\n", command)
	}
}

func (s *shellSession) solve(ctx context.Context, problem string) {
	solver := workflow.New(s.sup, s.conn.Client, s.workspace, workflow.Options{})
	if _, err := solver.Solve(ctx, problem); err != nil {
		printer.Failure("Solve failed: %v\n", err)
	}
}

func (s *shellSession) spawn(ctx context.Context, role string) {
	agentID, err := s.sup.Spawn(ctx, role)
	if err != nil {
		printer.Failure("Spawn failed: %v\n", err)
		return
	}
	printer.Success("Spawned %s agent: %s\n", role, agentID)

	if _, err := watch.WaitForStatus(ctx, s.conn.Client, agentID, coord.StatusRunning, 10*time.Second); err != nil {
		printer.Warning("Agent did not report running: %v\n", err)
		return
	}
	printer.Success("Agent %s is running\n", agentID)
}

func (s *shellSession) state(ctx context.Context, key string) {
	if key == "" {
		if err := report.ListState(ctx, s.conn.Client, 0, 0, report.OutputFormatDefault, os.Stdout); err != nil {
			printer.Failure("%v\n", err)
		}
		return
	}

	if err := report.GetStateEntry(ctx, s.conn.Client, key, os.Stdout); err != nil {
		if report.IsNotFound(err) {
			printer.Failure("State key '%s' not found\n", key)
			return
		}
		printer.Failure("%v\n", err)
	}
}

// quit takes down every agent the session can reach, not just its own
// children: graceful shutdowns first, then kills for stragglers.
func (s *shellSession) quit(ctx context.Context) error {
	printer.Warning("Shutting down agents...\n")
	if err := s.sup.ShutdownAll(ctx, "shell exiting", 10*time.Second); err != nil {
		printer.Warning("Some agents did not shut down cleanly: %v\n", err)
	}
	printer.Success("Shutdown complete\n")
	return nil
}
