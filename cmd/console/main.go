package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"shoply/livechat/internal/auth"
	"shoply/livechat/internal/livechat"
	"shoply/livechat/internal/models"
	"shoply/livechat/internal/store"
)

type devTokenResponse struct {
	Token         string `json:"token"`
	ParticipantID string `json:"participant_id"`
}

func fetchDevToken(apiAddr, participantID, role string) (string, error) {
	reqBody, _ := json.Marshal(map[string]string{
		"participant_id": participantID,
		"role":           role,
	})
	resp, err := http.Post(apiAddr+"/auth/dev-token", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token request failed: %s", string(body))
	}

	var tokenResp devTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", err
	}
	return tokenResp.Token, nil
}

// shortID abbreviates server-minted uuids without choking on hand-entered ids.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// watchEvents prints the live stream alongside the prompt. A second
// subscription on the same connection so the client's own demux keeps running
// untouched.
func watchEvents(client *livechat.Client, selfID string) func() {
	events, cancel := client.Conn.Subscribe()
	go func() {
		for ev := range events {
			switch ev.Type {
			case models.EventMessage:
				if ev.Message != nil && ev.Message.SenderID != selfID {
					fmt.Printf("\r[%s] %s: %s\n> ", shortID(ev.Message.ConversationID), ev.Message.SenderID, ev.Message.Body)
				}
			case models.EventTyping:
				if ev.Typing != nil && ev.Typing.ParticipantID != selfID && ev.Typing.IsTyping {
					fmt.Printf("\r%s is typing...\n> ", ev.Typing.ParticipantID)
				}
			case models.EventStatusChanged:
				if ev.Status != nil {
					fmt.Printf("\rconversation %s is now %s\n> ", shortID(ev.Status.ConversationID), ev.Status.Status)
				}
			case models.EventConnected:
				fmt.Print("\r[connected]\n> ")
			case models.EventDisconnected:
				fmt.Print("\r[connection lost, reconnecting]\n> ")
			}
		}
	}()
	return cancel
}

func main() {
	apiAddr := flag.String("api", "http://localhost:8080", "dev server address")
	wsAddr := flag.String("ws", "ws://localhost:8080/ws", "websocket endpoint")
	token := flag.String("token", "", "session token (minted via the dev server when empty)")
	userID := flag.String("user", "", "participant id used when minting a dev token")
	role := flag.String("role", "customer", "role used when minting a dev token (customer|staff)")
	conversationID := flag.String("conversation", "", "conversation to open on start")
	flag.Parse()

	sessionToken := *token
	if sessionToken == "" {
		var err error
		sessionToken, err = fetchDevToken(*apiAddr, *userID, *role)
		if err != nil {
			log.Fatalf("Failed to obtain a session token: %v", err)
		}
	}

	session, err := auth.SessionFromToken(sessionToken)
	if err != nil {
		log.Fatalf("Bad session token: %v", err)
	}
	log.Printf("Connecting as %s (%s)", session.ParticipantID, session.Role)

	st := store.NewClient(*apiAddr, sessionToken)
	client := livechat.New(*wsAddr, session, st)

	ctx := context.Background()
	if err := client.Open(ctx); err != nil {
		log.Fatalf("Failed to open the live connection: %v", err)
	}
	defer client.Close()

	stopWatching := watchEvents(client, session.ParticipantID)
	defer stopWatching()

	current := *conversationID
	if current != "" {
		openConversation(ctx, client, current)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-interrupt:
			fmt.Println("\nbye")
			return

		case line, ok := <-lines:
			if !ok {
				return
			}
			if line == "" {
				fmt.Print("> ")
				continue
			}
			if strings.HasPrefix(line, "/") {
				if quit := runCommand(ctx, client, st, &current, line); quit {
					return
				}
			} else if current == "" {
				fmt.Println("no conversation open, use /new or /join <id>")
			} else {
				client.SetTyping(current, false)
				if _, err := client.Send(ctx, current, line); err != nil {
					fmt.Printf("send failed: %v\n", err)
				}
			}
			fmt.Print("> ")
		}
	}
}

func runCommand(ctx context.Context, client *livechat.Client, st *store.Client, current *string, line string) bool {
	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "/quit":
		return true

	case "/list":
		convs, err := st.FetchConversations(ctx, client.Conn.Session().ParticipantID)
		if err != nil {
			fmt.Printf("list failed: %v\n", err)
			break
		}
		for _, conv := range convs {
			fmt.Printf("  %s  %-7s  unread=%d  last=%s\n",
				conv.ConversationID, conv.Status, conv.UnreadCount,
				conv.LastMessageAt.Local().Format(time.Kitchen))
		}

	case "/new":
		conv, err := st.CreateConversation(ctx)
		if err != nil {
			fmt.Printf("create failed: %v\n", err)
			break
		}
		fmt.Printf("created conversation %s\n", conv.ConversationID)
		*current = conv.ConversationID
		openConversation(ctx, client, *current)

	case "/join":
		if arg == "" {
			fmt.Println("usage: /join <conversation-id>")
			break
		}
		*current = arg
		openConversation(ctx, client, *current)

	case "/typing":
		if *current != "" {
			client.SetTyping(*current, true)
		}

	case "/history":
		if *current == "" {
			break
		}
		for _, msg := range client.Log.Messages(*current) {
			fmt.Printf("  [%s] %s: %s\n", msg.CreatedAt.Local().Format(time.Kitchen), msg.SenderID, msg.Body)
		}

	case "/read":
		if *current != "" {
			if err := client.MarkRead(ctx, *current); err != nil {
				fmt.Printf("mark read failed: %v\n", err)
			}
		}

	case "/close":
		if *current != "" {
			if err := client.CloseConversation(ctx, *current); err != nil {
				fmt.Printf("close failed: %v\n", err)
			}
		}

	case "/reopen":
		if *current != "" {
			if err := client.ReopenConversation(ctx, *current); err != nil {
				fmt.Printf("reopen failed: %v\n", err)
			}
		}

	default:
		fmt.Println("commands: /list /new /join <id> /typing /history /read /close /reopen /quit")
	}
	return false
}

func openConversation(ctx context.Context, client *livechat.Client, conversationID string) {
	history, err := client.OpenConversation(ctx, conversationID)
	if err != nil {
		fmt.Printf("open failed: %v\n", err)
		return
	}
	fmt.Printf("opened %s (%d messages, status %s)\n",
		conversationID, len(history), client.Lifecycle.CurrentStatus(conversationID))
	for _, msg := range history {
		fmt.Printf("  [%s] %s: %s\n", msg.CreatedAt.Local().Format(time.Kitchen), msg.SenderID, msg.Body)
	}
}
