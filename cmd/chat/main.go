package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/time/rate"

	"roleplay-chat/core/internal/ai"
	"roleplay-chat/core/internal/models"
	"roleplay-chat/core/internal/persistence"
	"roleplay-chat/core/internal/pipeline"
	"roleplay-chat/core/internal/store"
	"roleplay-chat/core/pkg/config"
	apperrors "roleplay-chat/core/pkg/errors"
	"roleplay-chat/core/pkg/logger"
	"roleplay-chat/core/pkg/secrets"
	"roleplay-chat/core/shared/observability"
)

func main() {
	cfg := config.New()

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"
	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("starting roleplay chat", "version", cfg.App.Version, "env", cfg.App.Env)

	var metrics *observability.ChatMetrics
	if cfg.Telemetry.Enabled {
		shutdownTracing := observability.SetupTracing("roleplay-chat")
		defer shutdownTracing()
		observability.SetupPrometheusMetrics(cfg.Telemetry.MetricsPort)

		m, err := observability.NewChatMetrics()
		if err != nil {
			log.LogError(err, "failed to register metrics, continuing without telemetry")
		} else {
			metrics = m
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slot, err := openSlot(ctx, cfg)
	if err != nil {
		log.LogError(err, "failed to open persistence slot")
		os.Exit(1)
	}

	st, err := store.New(ctx, slot, log, store.WithMetrics(metrics))
	if err != nil {
		log.LogError(err, "failed to rehydrate store")
		os.Exit(1)
	}

	keys, err := secrets.NewKeyStore(cfg, log)
	if err != nil {
		log.LogError(err, "credential store unavailable, continuing without stored keys")
		keys = nil
	}

	provider := ai.NewClient(ai.ClientConfig{
		BaseURL:        cfg.Provider.BaseURL,
		Model:          cfg.Provider.Model,
		RateLimit:      rate.Limit(cfg.Provider.RateLimit),
		RateLimitBurst: cfg.Provider.RateLimitBurst,
	}, log)
	fallback := ai.NewFallbackGenerator(cfg.Chat.TypingDelayScale)

	var resolver pipeline.KeyResolver
	if keys != nil {
		resolver = keys
	}
	pipe := pipeline.New(st, provider, fallback, resolver, cfg, log, metrics)

	runREPL(ctx, cfg, st, pipe)
	log.Info("goodbye")
}

func openSlot(ctx context.Context, cfg *config.Config) (persistence.Slot, error) {
	switch cfg.Persistence.Backend {
	case "redis":
		slot := persistence.NewRedisSlot(
			cfg.Persistence.RedisAddr,
			cfg.Persistence.RedisPassword,
			cfg.Persistence.RedisDB,
			cfg.Persistence.RedisKey,
		)
		if err := slot.Ping(ctx); err != nil {
			return nil, err
		}
		return slot, nil
	default:
		return persistence.NewFileSlot(cfg.Persistence.FilePath), nil
	}
}

func runREPL(ctx context.Context, cfg *config.Config, st *store.Store, pipe *pipeline.Pipeline) {
	fmt.Println("roleplay chat — /help for commands")
	printActive(st)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		if strings.HasPrefix(line, "/") {
			if quit := runCommand(ctx, st, line); quit {
				return
			}
			continue
		}

		active, ok := st.ActiveCharacter()
		if !ok {
			fmt.Println("no active character; /create one or /use an existing one")
			continue
		}

		reply, err := pipe.Send(ctx, active.ID, cfg.App.UserID, line)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		fmt.Printf("%s: %s\n", active.Name, reply.Text)
	}
}

// runCommand dispatches a /command. Returns true when the session should end.
func runCommand(ctx context.Context, st *store.Store, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Println(`commands:
  /create name | personality | backstory
  /list [query]       filtered character gallery
  /use <name or id>   switch the active character
  /fav <name or id>   toggle favorite
  /delete <name or id>
  /history            active character's conversation
  /search <query>     search the active conversation
  /stats
  /export <file>
  /import <file>
  /quit`)

	case "/create":
		parts := strings.SplitN(arg, "|", 3)
		if len(parts) != 3 {
			fmt.Println("usage: /create name | personality | backstory")
			return false
		}
		name := strings.TrimSpace(parts[0])
		personality := strings.TrimSpace(parts[1])
		backstory := strings.TrimSpace(parts[2])
		if len(backstory) < models.MinBackstoryLen {
			fmt.Printf("backstory must be at least %d characters\n", models.MinBackstoryLen)
			return false
		}
		c, err := st.CreateCharacter(ctx, models.CharacterInput{
			Name:        name,
			Personality: personality,
			Backstory:   backstory,
		})
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		if err := st.SetActiveCharacter(ctx, c.ID); err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Printf("created %s (%s), now active\n", c.Name, c.Personality)

	case "/list":
		characters := st.FilteredCharacters(store.CharacterFilter{Query: arg, SortBy: store.SortFavorites})
		if len(characters) == 0 {
			fmt.Println("no characters")
			return false
		}
		for _, c := range characters {
			marker := " "
			if c.IsFavorite {
				marker = "*"
			}
			fmt.Printf("%s %-20s %-12s %d messages\n", marker, c.Name, c.Personality, st.CharacterMessageCount(c.ID))
		}

	case "/use":
		c, err := findCharacter(st, arg)
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		if err := st.SetActiveCharacter(ctx, c.ID); err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Printf("now chatting with %s\n", c.Name)

	case "/fav":
		c, err := findCharacter(st, arg)
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		updated, err := st.ToggleFavorite(ctx, c.ID)
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Printf("%s favorite=%v\n", updated.Name, updated.IsFavorite)

	case "/delete":
		c, err := findCharacter(st, arg)
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		if err := st.DeleteCharacter(ctx, c.ID); err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Printf("deleted %s and their conversation\n", c.Name)

	case "/history":
		active, ok := st.ActiveCharacter()
		if !ok {
			fmt.Println("no active character")
			return false
		}
		printMessages(active, st.GetMessages(active.ID))

	case "/search":
		active, ok := st.ActiveCharacter()
		if !ok {
			fmt.Println("no active character")
			return false
		}
		printMessages(active, st.SearchMessages(active.ID, arg))

	case "/stats":
		stats := st.GetStats()
		fmt.Printf("characters: %d (%d favorites), messages: %d\n",
			stats.TotalCharacters, stats.FavoriteCount, stats.TotalMessages)
		for p, n := range stats.PersonalityCounts {
			fmt.Printf("  %-12s %d\n", p, n)
		}
		if stats.MostActive != nil {
			fmt.Printf("most active: %s (%d messages)\n",
				stats.MostActive.Name, stats.MessageCounts[stats.MostActive.ID])
		}

	case "/export":
		if arg == "" {
			fmt.Println("usage: /export <file>")
			return false
		}
		blob := st.ExportData()
		data, err := marshalExport(blob)
		if err == nil {
			err = os.WriteFile(arg, data, 0o644)
		}
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Printf("exported %d characters, %d messages to %s\n",
			len(blob.Characters), len(blob.Conversations), arg)

	case "/import":
		if arg == "" {
			fmt.Println("usage: /import <file>")
			return false
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		if err := st.ImportData(ctx, data); err != nil {
			if apperrors.HasCode(err, apperrors.CodeImportFormat) {
				fmt.Println("not a valid export file; nothing was changed")
			} else {
				fmt.Println("error:", err)
			}
			return false
		}
		fmt.Println("import complete")
		printActive(st)

	default:
		fmt.Println("unknown command; /help")
	}
	return false
}

// findCharacter resolves a name or id prefix to a single character.
func findCharacter(st *store.Store, ref string) (*models.Character, error) {
	if ref == "" {
		return nil, apperrors.NewValidationError("character name or id required")
	}
	for _, c := range st.GetAllCharacters() {
		if strings.EqualFold(c.Name, ref) || strings.HasPrefix(c.ID, ref) {
			out := c
			return &out, nil
		}
	}
	return nil, apperrors.NewNotFoundError("no character matches " + ref)
}

func printMessages(c *models.Character, messages []models.Message) {
	if len(messages) == 0 {
		fmt.Println("no messages")
		return
	}
	for _, m := range messages {
		author := c.Name
		if m.IsUser {
			author = "you"
		}
		edited := ""
		if m.Edited {
			edited = " (edited)"
		}
		fmt.Printf("[%s] %s: %s%s\n", m.Timestamp.Format("15:04:05"), author, m.Text, edited)
	}
}

func printActive(st *store.Store) {
	if active, ok := st.ActiveCharacter(); ok {
		fmt.Printf("active character: %s (%s)\n", active.Name, active.Personality)
	}
}

func marshalExport(blob *models.ExportBlob) ([]byte, error) {
	return json.MarshalIndent(blob, "", "  ")
}
