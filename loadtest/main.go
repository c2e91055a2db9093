package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BaseURL   = "http://localhost:8080"
	WSURL     = "ws://localhost:8080/ws"
	PairCount = 50 // Conversation pairs (2 users each). Start small.
	MsgCount  = 20 // Messages per user
)

type authResponse struct {
	Token string `json:"access_token"`
	ID    string `json:"id"`
}

type conversationResponse struct {
	Conversation struct {
		ID string `json:"id"`
	} `json:"conversation"`
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func main() {
	log.Printf("starting stress test: %d users, %d messages each", PairCount*2, MsgCount)
	var wg sync.WaitGroup

	// Pairs: user N_a talks to user N_b.
	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Println("load test complete")
}

func runPair(pairID int) {
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)
	pass := "password123"

	tokenA, _ := authenticate(userA, pass)
	tokenB, idB := authenticate(userB, pass)
	if tokenA == "" || tokenB == "" {
		return
	}

	convID := createConversation(tokenA, idB)
	if convID == "" {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(&wsWg, tokenA, convID, userA)
	go spamChat(&wsWg, tokenB, convID, userB)
	wsWg.Wait()
}

// authenticate registers (ignoring "already exists") and logs in. The login
// response carries the user id, so no directory lookup is needed.
func authenticate(username, password string) (token, id string) {
	postJSON("/register", map[string]string{"username": username, "password": password})

	resp, err := postJSON("/login", map[string]string{"username": username, "password": password})
	if err != nil {
		log.Printf("login failed [%s]: %v", username, err)
		return "", ""
	}
	defer resp.Body.Close()

	var data authResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.Token, data.ID
}

func createConversation(token, participantID string) string {
	body, _ := json.Marshal(map[string]string{
		"type":          "direct",
		"participantId": participantID,
	})
	req, _ := http.NewRequest("POST", BaseURL+"/api/conversations", bytes.NewBuffer(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("create conversation failed: %v", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Printf("create conversation failed: status %d", resp.StatusCode)
		return ""
	}

	var data conversationResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.Conversation.ID
}

func spamChat(wg *sync.WaitGroup, token, convID, user string) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", WSURL, token), nil)
	if err != nil {
		log.Printf("ws connect failed [%s]: %v", user, err)
		return
	}
	defer conn.Close()

	// Drain server frames so the connection's buffer never fills.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeEvent(conn, "conversation:join", map[string]string{"conversationId": convID}); err != nil {
		log.Printf("join failed [%s]: %v", user, err)
		return
	}

	for i := 0; i < MsgCount; i++ {
		err := writeEvent(conn, "message:send", map[string]string{
			"conversationId": convID,
			"content":        fmt.Sprintf("loadtest msg %d from %s", i, user),
		})
		if err != nil {
			log.Printf("send failed [%s]: %v", user, err)
			break
		}
		// Small sleep to avoid an instant localhost bottleneck.
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("%s finished sending %d msgs", user, MsgCount)
}

func writeEvent(conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(envelope{Event: event, Data: raw})
}

func postJSON(endpoint string, data any) (*http.Response, error) {
	body, _ := json.Marshal(data)
	return http.Post(BaseURL+endpoint, "application/json", bytes.NewBuffer(body))
}
