// Command healthcheck checks the local recibos server and exits non-zero when
// it is not answering. It is meant for container HEALTHCHECK directives.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"
)

const (
	defaultAddr = "127.0.0.1:8080"
	healthPath  = "/api/test"
	timeout     = 2 * time.Second
)

func main() {
	os.Exit(check(normalizeAddr(os.Getenv("RECIBOS_LISTEN_ADDR"))))
}

// check returns 0 when GET /api/test answers 200 with "ok": true.
func check(addr string) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+healthPath, nil)
	if err != nil {
		return 1
	}

	resp, err := (&http.Client{Timeout: timeout}).Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "healthcheck:", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintln(os.Stderr, "healthcheck: status", resp.StatusCode)
		return 1
	}

	var status struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&status); err != nil || !status.OK {
		fmt.Fprintln(os.Stderr, "healthcheck: server did not report ok")
		return 1
	}
	return 0
}

// normalizeAddr points the check at loopback when the server binds every
// interface, since the check runs beside it.
func normalizeAddr(raw string) string {
	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return defaultAddr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
