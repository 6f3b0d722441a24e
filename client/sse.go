package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/brojonat/bankd/service/events"
)

// StreamTransactions subscribes to the server's SSE endpoint for one
// account and delivers each new transfer event on the returned channel.
// The channel is closed when ctx is cancelled or the stream drops.
func StreamTransactions(ctx context.Context, baseURL, account string, logger *slog.Logger) (<-chan events.TransferEvent, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	u := fmt.Sprintf("%s/api/v1/stream/accounts/%s", baseURL, url.PathEscape(account))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// No timeout: this is a streaming request.
	httpClient := &http.Client{}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SSE endpoint: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	out := make(chan events.TransferEvent)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		var event, data string
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				if event == "transaction" && data != "" {
					var ev events.TransferEvent
					if err := json.Unmarshal([]byte(data), &ev); err != nil {
						logger.Warn("skipping unparseable SSE event", "error", err)
					} else {
						select {
						case out <- ev:
						case <-ctx.Done():
							return
						}
					}
				}
				event, data = "", ""
				continue
			}
			if strings.HasPrefix(line, "event:") {
				event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			} else if strings.HasPrefix(line, "data:") {
				data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		}
	}()
	return out, nil
}
