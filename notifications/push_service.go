package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	config "github.com/anjiri1684/tutor_settlement/configs"
)

const fcmSendURL = "https://fcm.googleapis.com/fcm/send"

type FCMService struct {
	ServerKey string
}

var PushClient *FCMService

var _ Notifier = (*FCMService)(nil)

type fcmPayload struct {
	To           string            `json:"to"`
	Priority     string            `json:"priority"`
	Notification map[string]string `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

func InitPushService() {
	serverKey := config.Config("FCM_SERVER_KEY")

	if serverKey == "" {
		log.Println("⚠️ Push service not configured. Missing FCM server key.")
		PushClient = nil
		return
	}

	PushClient = &FCMService{ServerKey: serverKey}
	log.Println("✅ Push service initialized successfully.")
}

func (s *FCMService) send(token, title, body string, data map[string]string) error {
	if token == "" {
		return fmt.Errorf("empty device token")
	}

	payload := fcmPayload{
		To:       token,
		Priority: "high",
		Notification: map[string]string{
			"title": title,
			"body":  body,
			"sound": "default",
		},
		Data: data,
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %v", err)
	}

	req, err := http.NewRequest("POST", fcmSendURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}

	req.Header.Set("Authorization", "key="+s.ServerKey)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("FCM API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Notify sends a push notification and only logs on failure.
func (s *FCMService) Notify(token, title, body string, data map[string]string) {
	if s == nil {
		log.Println("Push client not initialized, skipping notification.")
		return
	}

	if err := s.send(token, title, body, data); err != nil {
		log.Printf("🔥 Failed to send push notification %q: %v", title, err)
		return
	}

	log.Printf("✅ Push notification sent: %s", title)
}
