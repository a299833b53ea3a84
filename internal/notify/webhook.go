package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"uniherald/internal/domain"
)

type discordPayload struct {
	Content string `json:"content"`
}

type genericPayload struct {
	Text string `json:"text"`
}

func payloadFor(kind string, ann domain.Announcement) ([]byte, error) {
	message := ann.Title
	if ann.Link != "" {
		message += "\n" + ann.Link
	}

	switch kind {
	case domain.TargetKindDiscord:
		return json.Marshal(discordPayload{Content: message})
	default:
		return json.Marshal(genericPayload{Text: message})
	}
}

// post performs a single webhook delivery attempt. Errors are rewritten to
// carry only the redacted endpoint: transport errors from net/http embed
// the full URL, which holds the webhook credential.
func (d *Dispatcher) post(
	ctx context.Context,
	ann domain.Announcement,
	target domain.Target,
) error {
	body, err := payloadFor(target.Kind, ann)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		target.Endpoint,
		bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("create request for %s: %w", target.Redacted(), maskURLError(err))
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to %s: %w", target.Redacted(), maskURLError(err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("post to %s: unexpected status: %d", target.Redacted(), resp.StatusCode)
	}

	return nil
}

func maskURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		return uerr.Err
	}

	return errors.New("request failed")
}
