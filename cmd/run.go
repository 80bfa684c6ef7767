package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fieldflow-ai/fieldflow/internal/agent"
	"github.com/fieldflow-ai/fieldflow/internal/field"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var fieldsFile string
	var sessionID string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an interactive onboarding conversation",
		Example: `  fieldflow run --fields fields.yaml
  fieldflow run -f fields.yaml --session signup-42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(fieldsFile, sessionID)
		},
	}

	cmd.Flags().StringVarP(&fieldsFile, "fields", "f", "", "fields definition file (yaml)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (default: generated)")

	return cmd
}

// runInteractive drives one onboarding conversation over stdin/stdout until
// every field has been collected, then prints the assembled values.
func runInteractive(fieldsFile, sessionID string) error {
	cfg := initConfig()
	logger := newLogger(cfg)

	p, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	if fieldsFile == "" {
		fieldsFile = cfg.Onboarding.FieldsFile
	}
	if fieldsFile == "" {
		return fmt.Errorf("--fields is required (or set onboarding.fields_file in config)")
	}
	data, err := os.ReadFile(fieldsFile)
	if err != nil {
		return fmt.Errorf("read fields file: %w", err)
	}
	fcfg, err := field.ParseYAML(data)
	if err != nil {
		return fmt.Errorf("parse fields file: %w", err)
	}
	specs, err := field.Normalize(fcfg)
	if err != nil {
		return err
	}

	a := agent.New(p, store, agent.Options{
		Logger:            logger,
		CompletionMessage: cfg.Onboarding.CompletionMessage,
	})
	if err := a.ConfigureFields(fcfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	started, err := a.Begin(ctx, sessionID)
	if err != nil {
		return err
	}
	fmt.Printf("session: %s (%d fields, provider: %s)\n\n", started.SessionID, len(specs), p.Name())
	if cfg.Onboarding.WelcomeMessage != "" {
		fmt.Println(cfg.Onboarding.WelcomeMessage)
	}
	fmt.Println(started.Message)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		prog, err := a.Progress(started.SessionID)
		if err != nil {
			return err
		}
		if prog.IsComplete {
			break
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			fmt.Println()
			return nil // EOF before completion: session stays resumable
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		msg, err := a.Chat(ctx, started.SessionID, line)
		if err != nil {
			return err
		}
		fmt.Println(msg.Content)
	}

	values, err := collectedValues(ctx, a, started.SessionID, cfg.Onboarding.FinalExtraction)
	if err != nil {
		return err
	}

	fmt.Println("\nCollected:")
	for _, spec := range specs {
		fmt.Printf("  %s: %s\n", spec.Name, values[spec.Name])
	}
	return nil
}

// collectedValues returns the session's field values, optionally running the
// full-transcript extraction pass first.
func collectedValues(ctx context.Context, a *agent.Agent, sessionID string, finalExtraction bool) (map[string]string, error) {
	if finalExtraction {
		return a.Reextract(ctx, sessionID)
	}
	res, err := a.Complete(sessionID)
	if err != nil {
		return nil, err
	}
	return res.Fields, nil
}
