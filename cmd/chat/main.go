package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"gochat/model"
	"gochat/platform"
	"gochat/service"

	"github.com/joho/godotenv"
)

func printMessage(m model.Message) {
	ts := m.CreatedAt.Format("15:04:05")
	if m.Role == model.RoleAssistant {
		fmt.Printf("[%s] assistant (%s) %s: %s\n", ts, m.Model, m.ID, m.Content)
	} else {
		fmt.Printf("[%s] you %s: %s\n", ts, m.ID, m.Content)
	}
}

func main() {
	//Load the .env file
	if err := godotenv.Load(".env"); err != nil {
		fmt.Println("failed to load the env file")
	}

	platform.InitDB()
	model.InstallDB()
	platform.InitLLMClient()

	cachePath := os.Getenv("CACHE_PATH")
	if cachePath == "" {
		cachePath = "./.gochat/chat-store.json"
	}

	session := service.NewSessionStore(platform.NewCache(cachePath))
	authService := service.NewAuthService(&service.UserService{})
	chatService := service.NewChatService(&service.CompletionGateway{})
	ctrl := service.NewSyncController(session, model.NewMessageStore(platform.DB), chatService, authService)
	defer ctrl.Close()

	fmt.Println("gochat client")
	fmt.Println("commands: /login <user> <pass>, /logout, /model <id>, /edit <id> <text>, /delete <id>, /history, /quit")

	scanner := bufio.NewScanner(os.Stdin)
	ctx := context.Background()
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case strings.HasPrefix(line, "/login "):
			fields := strings.Fields(line)
			if len(fields) != 3 {
				fmt.Println("usage: /login <user> <pass>")
				continue
			}
			identity, err := authService.SignIn(fields[1], fields[2])
			if err != nil {
				fmt.Println("login failed:", err)
				continue
			}
			fmt.Println("signed in as", identity.Email)
			// the sign-in handler loads history; re-fetch so a failed load
			// surfaces here instead of echoing stale cached messages
			if err := ctrl.RefreshHistory(); err != nil {
				fmt.Println("failed to load history:", err)
				continue
			}
			for _, m := range session.Messages() {
				printMessage(m)
			}
		case line == "/logout":
			authService.SignOut()
			fmt.Println("signed out")
		case strings.HasPrefix(line, "/model "):
			session.SetSelectedModel(strings.TrimSpace(strings.TrimPrefix(line, "/model ")))
			fmt.Println("model set to", session.SelectedModel())
		case strings.HasPrefix(line, "/edit "):
			fields := strings.SplitN(line, " ", 3)
			if len(fields) != 3 {
				fmt.Println("usage: /edit <id> <text>")
				continue
			}
			if err := ctrl.Edit(fields[1], fields[2]); err != nil {
				fmt.Println("edit failed:", err)
			}
		case strings.HasPrefix(line, "/delete "):
			if err := ctrl.Delete(strings.TrimSpace(strings.TrimPrefix(line, "/delete "))); err != nil {
				fmt.Println("delete failed:", err)
			}
		case line == "/history":
			if err := ctrl.RefreshHistory(); err != nil {
				fmt.Println("history failed:", err)
				continue
			}
			for _, m := range session.Messages() {
				printMessage(m)
			}
		default:
			before := len(session.Messages())
			if err := ctrl.Submit(ctx, line); err != nil {
				fmt.Println("send failed:", err)
				continue
			}
			for _, m := range session.Messages()[before:] {
				printMessage(m)
			}
		}
	}
}
