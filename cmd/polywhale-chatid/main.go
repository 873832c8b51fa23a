// Command polywhale-chatid prints the chat id of every chat that messages the bot,
// for filling in telegram.chat_ids.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/polywhale/internal/config"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Telegram.BotToken == "" {
		log.Fatal("No bot token configured (telegram.bot_token or TELEGRAM_BOT_TOKEN)")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		log.Fatalf("Failed to create Telegram bot: %v", err)
	}

	fmt.Printf("Connected as @%s. To get your chat ID:\n", bot.Self.UserName)
	fmt.Println("1. Direct message: send any message to the bot.")
	fmt.Println("2. Group chat: add the bot to the group, then send a message there (e.g. /start).")
	fmt.Println("\nWaiting for messages... (Ctrl+C to stop)")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	seen := make(map[int64]bool)
	for {
		select {
		case <-sigChan:
			bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.Chat == nil {
				continue
			}
			printChat(update.Message, seen)
		}
	}
}

func printChat(msg *tgbotapi.Message, seen map[int64]bool) {
	chat := msg.Chat
	title := chat.Title
	if title == "" {
		title = "Private Chat"
	}
	user := "Unknown"
	if msg.From != nil && msg.From.UserName != "" {
		user = msg.From.UserName
	}

	fmt.Println("\n📨 RECEIVED MESSAGE:")
	fmt.Printf("   From: @%s\n", user)
	fmt.Printf("   Chat Type: %s\n", strings.ToUpper(chat.Type))
	fmt.Printf("   Chat Title: %s\n", title)
	fmt.Printf("   ID: %d\n", chat.ID)
	fmt.Println(strings.Repeat("-", 30))

	if strings.Contains(chat.Type, "group") && !seen[chat.ID] {
		fmt.Printf("   >>> USE THIS ID FOR GROUPS: %d <<<\n", chat.ID)
	}
	seen[chat.ID] = true
}
