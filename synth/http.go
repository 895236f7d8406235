package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	phonecall "github.com/drewburns/ai-phonecall"
)

// post sends a JSON body and streams a successful response into w.
func post(ctx context.Context, client *http.Client, url string, headers map[string]string, body any, w io.Writer) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return phonecall.Temporary(fmt.Errorf("tts request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("tts error %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return phonecall.Temporary(err)
		}
		return err
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return phonecall.Temporary(fmt.Errorf("read audio: %w", err))
	}
	return nil
}
