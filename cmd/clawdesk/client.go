package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/clawdesk/clawdesk/internal/config"
	"github.com/clawdesk/clawdesk/internal/paths"
	"github.com/clawdesk/clawdesk/internal/security"
)

// apiClient talks to a running clawdesk server on its loopback address.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func newAPIClient(p paths.Paths) (*apiClient, error) {
	cfg, err := config.NewStore(p.ConfigPath, "").Load()
	if err != nil {
		return nil, err
	}
	token, err := security.NewSecretStore(p.SecretPath, nil).Ensure()
	if err != nil {
		return nil, err
	}
	return &apiClient{
		base:  "http://" + net.JoinHostPort(cfg.App.Host, strconv.Itoa(cfg.App.Port)),
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// do sends a request and decodes a JSON response into out. Non-2xx
// responses become errors carrying the server's error message.
func (c *apiClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		msg := gjson.GetBytes(body, "error").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// reachable reports whether a server answers on the configured address.
func (c *apiClient) reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.do(ctx, http.MethodGet, "/api/health", nil) == nil
}
