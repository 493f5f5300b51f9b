// Command healthcheck probes the bot's /healthz endpoint for container health
// checks. It exits non-zero unless the probe answers 200.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	client := &http.Client{Timeout: 3 * time.Second}
	ctx := context.Background()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL(os.Getenv("HTTP_ADDR")), nil)
	if err != nil {
		os.Exit(1)
	}
	resp, err := client.Do(req)
	if err != nil {
		os.Exit(1)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

// healthURL turns a listen address like ":8080" or "0.0.0.0:9000" into a
// loopback probe URL.
func healthURL(addr string) string {
	if addr == "" {
		addr = ":8080"
	}
	host, port, found := strings.Cut(addr, ":")
	if !found {
		port, host = addr, ""
	}
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return "http://" + host + ":" + port + "/healthz"
}
