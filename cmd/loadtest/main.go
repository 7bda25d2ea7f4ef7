package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BaseURL   = "http://localhost:8080"
	WSURL     = "ws://localhost:8080/ws"
	UserCount = 100 // ⚠️ Start small. 100 users on one global channel is already 9900 deliveries per round.
	MsgCount  = 10  // Messages per user
)

type AuthResponse struct {
	Token    string `json:"access_token"`
	Username string `json:"username"`
}

var received atomic.Int64

func main() {
	log.Printf("🔥 STARTING STRESS TEST: %d users, %d messages each on the global channel...", UserCount, MsgCount)
	var wg sync.WaitGroup

	for i := 0; i < UserCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runUser(id)
		}(i)
	}

	wg.Wait()
	log.Printf("✅ LOAD TEST COMPLETE: %d broadcast deliveries observed", received.Load())
}

func runUser(id int) {
	username := fmt.Sprintf("load_u_%d", id)
	pass := "password123"

	token := authenticate(username, pass)
	if token == "" {
		return // Failed auth
	}

	// Connect WS. recovered=true skips the history replay so the test
	// measures live broadcast only.
	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s&recovered=true", WSURL, token), nil)
	if err != nil {
		log.Printf("❌ WS connect fail [%s]: %v", username, err)
		return
	}
	defer conn.Close()

	// Count whatever the other users broadcast at us.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			received.Add(1)
		}
	}()

	for i := 0; i < MsgCount; i++ {
		msg := map[string]string{
			"text": fmt.Sprintf("LoadTest msg %d from %s", i, username),
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("❌ Send fail [%s]: %v", username, err)
			break
		}
		// Small sleep to prevent an instant localhost bottleneck.
		time.Sleep(10 * time.Millisecond)
	}

	// Linger so slower publishers still reach this reader.
	time.Sleep(2 * time.Second)
	log.Printf("✅ %s finished sending %d msgs", username, MsgCount)
}

// authenticate registers (ignoring an already-exists error) and logs in.
func authenticate(username, password string) string {
	postJSON("/register", map[string]string{
		"username": username,
		"fullname": "Load Tester " + username,
		"password": password,
	})

	resp, err := postJSON("/login", map[string]string{"username": username, "password": password})
	if err != nil {
		log.Printf("❌ Login failed [%s]: %v", username, err)
		return ""
	}
	defer resp.Body.Close()

	var data AuthResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.Token
}

func postJSON(endpoint string, data interface{}) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(BaseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
