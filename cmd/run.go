package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/florean/agora/arbiter"
	"github.com/florean/agora/autoplay"
	"github.com/florean/agora/collector"
	"github.com/florean/agora/config"
	"github.com/florean/agora/core"
	"github.com/florean/agora/engine"
	"github.com/florean/agora/events"
	"github.com/florean/agora/history"
	"github.com/florean/agora/llm"
	"github.com/florean/agora/roster"
	"github.com/florean/agora/store"
	tomlstore "github.com/florean/agora/store/toml"
)

func newRunCmd() *cobra.Command {
	var (
		agentsPath  string
		projectName string
		threadName  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive conversation",
		Long: `Start an interactive conversation against a project's agent roster.

Type a message to send it, or use:
  /next      solicit one more round without a new message
  /auto [n]  start auto-play (n rounds, or unbounded)
  /stop      stop auto-play
  /quit      exit`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runConversation(cmd, cfg, agentsPath, projectName, threadName)
		},
	}

	cmd.Flags().StringVar(&agentsPath, "agents", "", "agents.yaml roster definition (replaces the project's roster)")
	cmd.Flags().StringVar(&projectName, "project", "default", "project name")
	cmd.Flags().StringVar(&threadName, "thread", "", "thread topic (default: a timestamped name)")
	return cmd
}

func runConversation(cmd *cobra.Command, cfg *config.Config, agentsPath, projectName, threadName string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	replies, err := llm.NewAnthropic(cfg.APIKey, cfg.Model)
	if err != nil {
		return err
	}
	judge, err := llm.NewAnthropic(cfg.APIKey, cfg.JudgeModel)
	if err != nil {
		return err
	}

	repo, err := tomlstore.NewRepository(cfg.DataPath)
	if err != nil {
		return err
	}

	project, err := loadOrCreateProject(ctx, repo, projectName)
	if err != nil {
		return err
	}

	if agentsPath != "" {
		agents, err := roster.LoadDefinitions(agentsPath)
		if err != nil {
			return err
		}
		project.Agents = agents
	}
	if len(project.Agents) == 0 {
		return engine.ErrNoAgents
	}

	if threadName == "" {
		threadName = "Conversation " + time.Now().Format("2006-01-02 15:04")
	}
	thread := core.NewThread(threadName)
	project.AddThread(thread)
	if err := repo.SaveProject(ctx, project); err != nil {
		return err
	}

	sink := events.Sink(&printerSink{out: out})
	if cfg.ListenAddr != "" {
		hub := events.NewHub()
		defer hub.Close()
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/events", hub)
			_ = http.ListenAndServe(cfg.ListenAddr, mux)
		}()
		fmt.Fprintf(out, "event feed: ws://%s/events\n", cfg.ListenAddr)
		sink = events.Multi(sink, hub)
	}

	panel := roster.New(project.Agents, cfg.MemoryEnabled,
		roster.WithPersist(func(ctx context.Context, agents []core.Agent) error {
			project.Agents = agents
			return repo.SaveProject(ctx, project)
		}),
	)

	ledger := history.NewLedger(cfg.HistoryWindow)
	ledger.Replace(thread.History)

	judiciary, err := arbiter.New(judge)
	if err != nil {
		return err
	}

	eng := engine.New(
		collector.New(replies, collector.Config{
			MemoryEnabled:  cfg.MemoryEnabled,
			MaxTokens:      cfg.MaxTokens,
			RequestTimeout: cfg.RequestTimeout,
		}, collector.WithEvents(sink)),
		judiciary,
		panel,
		ledger,
		engine.WithEvents(sink),
		engine.WithPersist(func(ctx context.Context, items []core.HistoryItem) error {
			if err := project.SetHistory(thread.ID, items); err != nil {
				return err
			}
			return repo.SaveProject(ctx, project)
		}),
	)

	scheduler := autoplay.New(eng, cfg.AutoplayDelay)
	defer func() {
		scheduler.Stop()
		scheduler.Wait()
	}()

	fmt.Fprintf(out, "Topic: %s\n%d agents on the panel. Type a message, or /auto to let them talk.\n\n", threadName, panel.Len())

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return nil

		case line == "/stop":
			scheduler.Stop()
			scheduler.Wait()
			fmt.Fprintln(out, "auto-play stopped")

		case line == "/auto" || strings.HasPrefix(line, "/auto "):
			budget := autoplay.Unbounded
			if arg := strings.TrimSpace(strings.TrimPrefix(line, "/auto")); arg != "" {
				budget, err = strconv.Atoi(arg)
				if err != nil || budget < 1 {
					fmt.Fprintln(out, "usage: /auto [rounds]")
					continue
				}
			}
			if err := scheduler.Start(ctx, budget); err != nil {
				fmt.Fprintln(out, err)
			}

		case line == "/next":
			if _, err := eng.Next(ctx); err != nil {
				fmt.Fprintln(out, err)
			}

		default:
			if scheduler.State() != autoplay.StateIdle {
				fmt.Fprintln(out, "auto-play is running; /stop first")
				continue
			}
			if _, err := eng.SendMessage(ctx, line); err != nil {
				fmt.Fprintln(out, err)
			}
		}
	}
}

func loadOrCreateProject(ctx context.Context, repo store.Store, name string) (core.Project, error) {
	projects, err := repo.LoadProjects(ctx)
	if err != nil {
		return core.Project{}, err
	}
	for _, p := range projects {
		if p.Name == name {
			return p, nil
		}
	}
	project := core.NewProject(name)
	if err := repo.SaveProject(ctx, project); err != nil {
		return core.Project{}, err
	}
	return project, nil
}

// printerSink renders lifecycle events for the terminal.
type printerSink struct {
	out io.Writer
}

func (p *printerSink) Publish(ev events.Event) {
	switch ev.Type {
	case events.TypeAgentThinking:
		fmt.Fprintf(p.out, "… %s is thinking\n", ev.Agent)
	case events.TypeWinnerSelected:
		fmt.Fprintf(p.out, "\n%s (Priority: %d): %s\n", ev.Agent, ev.Priority, ev.Content)
	case events.TypeRoundEmpty:
		fmt.Fprintln(p.out, "(no agent contributed this round)")
	}
}
