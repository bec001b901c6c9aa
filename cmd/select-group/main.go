// Command select-group interactively picks which chat the monitor watches.
// It lists the dialogs visible to the gateway session, prompts for a
// choice (or a manually entered id), and persists the canonical chat id
// for the next monitor start.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Hyllesen/telegram-user-bot/config"
	"github.com/Hyllesen/telegram-user-bot/groupstore"
	"github.com/Hyllesen/telegram-user-bot/telegram"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := telegram.NewGatewayClient(cfg.GatewayAddr)
	if err := client.Connect(ctx); err != nil {
		log.Fatalf("could not connect to gateway at %s: %v", cfg.GatewayAddr, err)
	}

	fmt.Println("Fetching your chats...")
	dialogs, err := client.Dialogs(ctx)
	if err != nil {
		log.Fatalf("could not list dialogs: %v", err)
	}
	if len(dialogs) == 0 {
		fmt.Println("No chats visible to this session.")
		return
	}

	for i, d := range dialogs {
		fmt.Printf("%d. %s (%s, id %d)\n", i+1, d.Title, d.Kind, d.ChatID())
	}
	fmt.Printf("%d. Enter chat id manually\n", len(dialogs)+1)

	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("\nEnter your choice (1-%d): ", len(dialogs)+1)
		if !in.Scan() {
			return
		}
		choice, err := strconv.Atoi(strings.TrimSpace(in.Text()))
		if err != nil || choice < 1 || choice > len(dialogs)+1 {
			fmt.Printf("Please enter a number between 1 and %d\n", len(dialogs)+1)
			continue
		}

		var chatID int64
		if choice <= len(dialogs) {
			d := dialogs[choice-1]
			chatID = d.ChatID()
			fmt.Printf("Selected: %s (id %d)\n", d.Title, chatID)
		} else {
			fmt.Print("Enter the chat id: ")
			if !in.Scan() {
				return
			}
			chatID, err = strconv.ParseInt(strings.TrimSpace(in.Text()), 10, 64)
			if err != nil {
				fmt.Println("Invalid id format. Please enter a numeric id.")
				continue
			}
			fmt.Printf("Selected chat id %d\n", chatID)
		}

		if err := groupstore.Save(cfg.GroupFile, chatID); err != nil {
			log.Fatalf("could not save selection: %v", err)
		}
		fmt.Printf("Selection saved to %s. The monitor will watch this chat on next start.\n", cfg.GroupFile)
		return
	}
}
