package telegram

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"meal-planner/internal/catalog"
	"meal-planner/internal/config"
	"meal-planner/internal/metrics"
	"meal-planner/internal/planner"
	"meal-planner/internal/session"
	"meal-planner/internal/shopping"
)

const maxListedRecipes = 30

// Bot wraps the Telegram API around a planning session.
type Bot struct {
	api     *tgbotapi.BotAPI
	catalog *catalog.Catalog
	session *session.Session
	health  *metrics.Reporter
	allowed []int64
	logger  *zap.Logger
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(
	cfg *config.Config,
	cat *catalog.Catalog,
	s *session.Session,
	health *metrics.Reporter,
	logger *zap.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	logger.Info("authorized on telegram", zap.String("account", api.Self.UserName))

	wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook for %s: %w", cfg.TelegramWebhookURL, err)
	}
	resp, err := api.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
	}
	logger.Info("webhook set", zap.String("description", resp.Description))

	return &Bot{
		api:     api,
		catalog: cat,
		session: s,
		health:  health,
		allowed: cfg.TelegramAllowedUserIDs,
		logger:  logger,
	}, nil
}

// WebhookHandler returns the handler Telegram posts updates to.
func (b *Bot) WebhookHandler() http.Handler {
	return http.HandlerFunc(b.handleWebhook)
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		b.logger.Warn("failed to parse update", zap.Error(err))
		http.Error(w, "bad update", http.StatusBadRequest)
		return
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	if !b.isAllowed(msg.From.ID) {
		b.logger.Warn("unauthorized access attempt",
			zap.Int64("user_id", msg.From.ID),
			zap.String("username", msg.From.UserName),
		)
		return
	}

	go b.processMessage(msg)
}

func (b *Bot) isAllowed(userID int64) bool {
	return slices.Contains(b.allowed, userID)
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	reply := tgbotapi.NewMessage(msg.Chat.ID, b.respond(msg.Text))
	reply.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(reply); err != nil {
		b.logger.Error("failed to send reply", zap.Error(err))
	}
}

// respond runs one command against the session and returns the reply text.
func (b *Bot) respond(text string) string {
	cmd, args := parseCommand(text)
	switch cmd {
	case "recipes":
		return formatRecipes(b.catalog, strings.Join(args, " "))
	case "add":
		if len(args) != 1 {
			return "Usage: /add <recipe id>"
		}
		if !b.session.Add(args[0]) {
			return fmt.Sprintf("❌ Unknown recipe `%s`", args[0])
		}
		return fmt.Sprintf("✅ Added `%s`", args[0])
	case "remove":
		if len(args) != 1 {
			return "Usage: /remove <recipe id>"
		}
		if !b.session.Remove(args[0]) {
			return fmt.Sprintf("❌ `%s` is not in your plan", args[0])
		}
		return fmt.Sprintf("🗑 Removed `%s`", args[0])
	case "servings":
		if len(args) != 2 {
			return "Usage: /servings <recipe id> <count>"
		}
		if !b.session.SetServings(args[0], args[1]) {
			return fmt.Sprintf("❌ `%s` is not in your plan", args[0])
		}
		entry, _ := b.session.Plan().Find(args[0])
		return fmt.Sprintf("🍽 `%s` now serves %s", args[0], shopping.FormatQuantity(entry.Servings))
	case "option":
		if len(args) != 3 || (args[2] != "on" && args[2] != "off") {
			return "Usage: /option <recipe id> <group> on|off"
		}
		if !b.session.ToggleOptionalGroup(args[0], args[1], args[2] == "on") {
			return fmt.Sprintf("❌ `%s` is not in your plan", args[0])
		}
		return fmt.Sprintf("✅ Option *%s* turned %s for `%s`", args[1], args[2], args[0])
	case "plan":
		return formatPlan(b.session.View())
	case "list":
		return formatShoppingList(b.session.Ledger())
	case "health":
		return formatHealth(b.health.Report())
	default:
		return helpText
	}
}

const helpText = `🧑‍🍳 *Meal Planner*

/recipes [query] - search recipes
/add <id> - plan a recipe
/remove <id> - drop a recipe
/servings <id> <count> - change servings
/option <id> <group> on|off - toggle an optional group
/plan - show the plan
/list - show the shopping list
/health - show the service health`

// parseCommand splits "/cmd@bot a b" into "cmd" and its arguments.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), fields[1:]
}

func formatRecipes(cat *catalog.Catalog, query string) string {
	recipes := cat.Search(query)
	if len(recipes) == 0 {
		return "No recipe matches your search."
	}

	var sb strings.Builder
	sb.WriteString("📖 *Recipes*\n\n")
	for i, rec := range recipes {
		if i == maxListedRecipes {
			sb.WriteString(fmt.Sprintf("_…and %d more_\n", len(recipes)-maxListedRecipes))
			break
		}
		sb.WriteString(fmt.Sprintf("• %s `%s`", escape(rec.Title), rec.ID))
		if total := rec.Time.Total(); total > 0 {
			sb.WriteString(fmt.Sprintf(" (%d min)", total))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatPlan(entries []planner.EntryView) string {
	if len(entries) == 0 {
		return "🗓️ Your plan is empty. Use /add <id> to plan a recipe."
	}

	var sb strings.Builder
	sb.WriteString("📅 *Meal Plan*\n\n")
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("*%s*: %s servings\n", escape(e.Title), shopping.FormatQuantity(e.Servings)))
		for _, opt := range e.Options {
			mark := "❌"
			if opt.Enabled {
				mark = "✅"
			}
			sb.WriteString(fmt.Sprintf("   %s %s\n", mark, escape(opt.Label)))
		}
	}
	return sb.String()
}

func formatShoppingList(ledger shopping.Ledger) string {
	if len(ledger) == 0 {
		return "🛒 Your shopping list is empty."
	}

	var sb strings.Builder
	sb.WriteString("🛒 *Shopping List*\n\n")
	for _, line := range ledger.Strings() {
		sb.WriteString(fmt.Sprintf("• %s\n", escape(line)))
	}
	return sb.String()
}

func formatHealth(h metrics.Health) string {
	var sb strings.Builder
	sb.WriteString("📊 *Health Report*\n\n")
	sb.WriteString(fmt.Sprintf("• Uptime: %s\n", h.Uptime))
	sb.WriteString(fmt.Sprintf("• Recipes: %d\n", h.Recipes))
	sb.WriteString(fmt.Sprintf("• Planned: %d\n", h.PlanItems))
	sb.WriteString(fmt.Sprintf("• Remote: %s (signed in: %t)\n", h.Backend, h.SignedIn))
	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc) / %dMB (Sys)\n", h.System.AllocMB, h.System.SysMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", h.System.Goroutines))
	sb.WriteString(fmt.Sprintf("• Disk Data: %s\n", h.System.DataDiskSize))
	return sb.String()
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}
