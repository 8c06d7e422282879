package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

var pushClient = &http.Client{Timeout: 10 * time.Second}

const expoPushURL = "https://exp.host/--/api/v2/push/send"

// SendNotification delivers a single push message to an Expo push token.
func SendNotification(token string, title string, body string, data map[string]string) error {
	payload := map[string]interface{}{
		"to":    token,
		"title": title,
		"body":  body,
		"sound": "default",
	}
	if len(data) > 0 {
		payload["data"] = data
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := pushClient.Post(expoPushURL, "application/json", bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned status %d", resp.StatusCode)
	}
	return nil
}
