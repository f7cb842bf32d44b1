package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yourusername/kiwix-monitor-go/api/middleware"
)

const tokenTTL = 5 * time.Minute

var httpClient = &http.Client{Timeout: 30 * time.Second}

// authHeader returns the headers every API call carries
func authHeader() (http.Header, error) {
	header := http.Header{}
	if authSecret == "" {
		return header, nil
	}
	token, err := middleware.SignToken(authSecret, "cli", tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	header.Set("Authorization", "Bearer "+token)
	return header, nil
}

// apiRequest sends body as JSON and decodes the response into out when non-nil
func apiRequest(method, path string, body, out interface{}, wantStatus ...int) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, serverURL+path, reader)
	if err != nil {
		return err
	}
	header, err := authHeader()
	if err != nil {
		return err
	}
	req.Header = header
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if !statusWanted(resp.StatusCode, wantStatus) {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

func statusWanted(code int, want []int) bool {
	if len(want) == 0 {
		return code == http.StatusOK
	}
	for _, w := range want {
		if code == w {
			return true
		}
	}
	return false
}

// dialStream opens a websocket against the API
func dialStream(path string) (*websocket.Conn, error) {
	u, err := url.Parse(serverURL + path)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header, err := authHeader()
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	return conn, err
}
