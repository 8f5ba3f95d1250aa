package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/nugget/heirloom/internal/chat"
	"github.com/nugget/heirloom/internal/legacy"
)

// subArgs splits subcommand arguments into named options and the
// remaining positional words. Every name in names takes one value.
func subArgs(args []string, names ...string) (map[string]string, []string, error) {
	opts := make(map[string]string)
	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || len(rest) > 0 {
			rest = append(rest, arg)
			continue
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		known := false
		for _, n := range names {
			if n == name {
				known = true
				break
			}
		}
		if !known {
			return nil, nil, fmt.Errorf("unknown flag: %s", arg)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("flag -%s needs a value", name)
			}
			value = args[i+1]
			i++
		}
		opts[name] = value
	}
	return opts, rest, nil
}

// SeedResult is what seed prints.
type SeedResult struct {
	LegacyID   string `json:"legacy_id"`
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	Generation int    `json:"generation"`
	FounderID  string `json:"founder_id,omitempty"`
}

// runSeed creates a legacy for a user and starts its first generation,
// optionally with a founder.
func runSeed(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string, args []string) error {
	opts, rest, err := subArgs(args, "user", "founder")
	if err != nil {
		return err
	}
	name := strings.TrimSpace(strings.Join(rest, " "))
	if opts["user"] == "" || name == "" {
		return fmt.Errorf("%w: heirloom seed -user <id> [-founder <name>] <legacy name>", errUsage)
	}
	if _, err := uuid.Parse(opts["user"]); err != nil {
		return fmt.Errorf("user ID %q is not a UUID", opts["user"])
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := configuredLogger(stderr, cfg)

	a, err := openStores(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	gen1, ok := a.book.Generation(1)
	if !ok {
		return fmt.Errorf("rules book has no generation 1")
	}

	res := SeedResult{UserID: opts["user"], Name: name, Generation: gen1.Number}
	err = a.legacies.WithTx(ctx, func(q *legacy.Queries) error {
		if err := q.SeedCatalog(ctx, a.book); err != nil {
			return err
		}
		l, err := q.CreateLegacy(ctx, opts["user"], name)
		if err != nil {
			return err
		}
		res.LegacyID = l.ID
		gen, err := q.StartGeneration(ctx, l.ID, gen1)
		if err != nil {
			return err
		}
		if founder := strings.TrimSpace(opts["founder"]); founder != "" {
			p, err := q.CreatePerson(ctx, legacy.Person{
				LegacyID:     l.ID,
				GenerationID: gen.ID,
				Name:         founder,
				Category:     legacy.CategoryFounder,
				LifeStage:    legacy.StageYoungAdult,
				InHousehold:  true,
			})
			if err != nil {
				return err
			}
			res.FounderID = p.ID
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("seed legacy: %w", err)
	}
	logger.Info("legacy seeded", "legacy", res.LegacyID, "user", res.UserID, "generation", res.Generation)

	if outputFmt == "json" {
		return writeJSON(stdout, res)
	}
	fmt.Fprintf(stdout, "Created legacy %q (%s), generation %d: %s\n", name, res.LegacyID, gen1.Number, gen1.Name)
	return nil
}

// runAsk sends one message through the full chat stack and prints the
// reply. It continues the user's latest conversation unless
// -conversation names another.
func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string, args []string) error {
	opts, rest, err := subArgs(args, "user", "legacy", "conversation")
	if err != nil {
		return err
	}
	text := strings.Join(rest, " ")
	if opts["user"] == "" || opts["legacy"] == "" || strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: heirloom ask -user <id> -legacy <id> [-conversation <id>] <message>", errUsage)
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := configuredLogger(stderr, cfg)

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.chat.SendMessage(ctx, chat.SendRequest{
		UserID:         opts["user"],
		LegacyID:       opts["legacy"],
		ConversationID: opts["conversation"],
		Text:           text,
	})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if outputFmt == "json" {
		return writeJSON(stdout, res)
	}
	fmt.Fprintln(stdout, res.Reply.Text())
	for _, tc := range res.Reply.ToolCalls {
		status := "ok"
		if !tc.Outcome.Success {
			status = "failed: " + tc.Outcome.Error
		}
		logger.Debug("tool call", "tool", tc.Name, "status", status)
	}
	return nil
}
