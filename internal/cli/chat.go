package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/astrocare/internal/agent"
	"github.com/ashureev/astrocare/internal/companion"
	"github.com/ashureev/astrocare/internal/config"
	"github.com/ashureev/astrocare/internal/domain"
)

type chatOptions struct {
	persona     string
	personaFile string
	seed        uint64
	delay       time.Duration
}

func newChatCmd() *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a companion persona on stdin/stdout",
		Long: "Starts an interactive conversation. Type a message and press enter.\n" +
			"Commands: /summary shows tracked sleep, /transcript prints the log, /quit exits.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.persona, "persona", "p", "", "Built-in persona id (default: $PERSONA or astrobot)")
	cmd.Flags().StringVar(&opts.personaFile, "persona-file", "", "YAML persona file (overrides --persona)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "Seed for reply selection (0 picks a random seed)")
	cmd.Flags().DurationVar(&opts.delay, "delay", 0, "Pause before each reply")
	return cmd
}

func runChat(ctx context.Context, in io.Reader, out io.Writer, opts chatOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.persona == "" && opts.personaFile == "" {
		opts.persona, opts.personaFile = cfg.Persona, cfg.PersonaFile
	}
	persona, err := companion.ResolvePersona(opts.persona, opts.personaFile)
	if err != nil {
		return fmt.Errorf("load persona: %w", err)
	}

	var rng companion.Source
	if opts.seed != 0 {
		rng = companion.NewSeededSource(opts.seed)
	}
	conv, err := agent.NewConversation(agent.ConversationConfig{
		UserID:     "cli",
		SessionID:  "terminal",
		Persona:    persona,
		Facts:      cfg.Mission.Facts(),
		ReplyDelay: opts.delay,
		Rand:       rng,
	})
	if err != nil {
		return err
	}
	defer conv.Close()

	for _, msg := range conv.Transcript() {
		printMessage(out, persona, msg)
	}
	if len(persona.QuickActions) > 0 {
		fmt.Fprintf(out, "Try: %s\n", strings.Join(persona.QuickActions, " | "))
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := scanner.Text()

		switch strings.TrimSpace(line) {
		case "/quit", "/exit":
			return nil
		case "/summary":
			printSummary(out, conv.Summary())
			continue
		case "/transcript":
			for _, msg := range conv.Transcript() {
				printMessage(out, persona, msg)
			}
			continue
		}

		turn, err := conv.Submit(ctx, line, domain.ChannelTyped)
		var pe *companion.PlaceholderError
		switch {
		case errors.Is(err, agent.ErrEmptyInput):
			continue
		case err != nil && !errors.As(err, &pe):
			return err
		}
		printMessage(out, persona, turn.Reply)
	}
}

func printMessage(out io.Writer, persona *companion.Persona, msg domain.ChatMessage) {
	who := "You"
	if !msg.IsUser() {
		who = persona.Name
	}
	fmt.Fprintf(out, "%s: %s\n", who, msg.Text)
}

func printSummary(out io.Writer, s domain.SessionSummary) {
	fmt.Fprintf(out, "Turns: %d\n", s.TurnCount)
	if badge := s.SleepBadge(); badge != "" {
		fmt.Fprintln(out, badge)
	}
	if s.SleepCheckedAt != nil {
		fmt.Fprintf(out, "Last sleep check: %s\n", s.SleepCheckedAt.Local().Format(time.Kitchen))
	}
}
