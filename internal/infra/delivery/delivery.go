// Package delivery sends callback payloads to the result relay and finish
// signals to the host, either through a queue directory or over HTTP.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/runoshun/termux-tasker/internal/domain"
	"github.com/runoshun/termux-tasker/internal/infra/ipc"
)

const defaultHTTPTimeout = 10 * time.Second

func isHTTP(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}

// CallbackSender implements domain.CallbackSink.
// Addresses are callback queue directories or http(s) base URLs to which
// the request code is appended.
type CallbackSender struct {
	client *http.Client
}

// Ensure CallbackSender implements domain.CallbackSink.
var _ domain.CallbackSink = (*CallbackSender)(nil)

// NewCallbackSender creates a new CallbackSender.
func NewCallbackSender() *CallbackSender {
	return &CallbackSender{client: &http.Client{Timeout: defaultHTTPTimeout}}
}

// Deliver sends payload to addr.
func (s *CallbackSender) Deliver(ctx context.Context, addr domain.CallbackAddress, payload domain.CallbackPayload) error {
	payload.RequestCode = addr.RequestCode
	if payload.CreatedAt.IsZero() {
		payload.CreatedAt = time.Now().UTC()
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	if isHTTP(addr.Queue) {
		url := strings.TrimRight(addr.Queue, "/") + "/" + strconv.Itoa(addr.RequestCode)
		return postJSON(ctx, s.client, url, payload)
	}
	if addr.Queue == "" {
		return fmt.Errorf("%w: callback address has no queue", domain.ErrInvalidMessage)
	}
	return ipc.NewCallbackQueue(addr.Queue).Send(ctx, payload)
}

// Notifier implements domain.HostNotifier.
// Replies go to the caller's ReplyTo target, or to the caller's default
// reply queue under the data directory.
type Notifier struct {
	client  *http.Client
	dataDir string
}

// Ensure Notifier implements domain.HostNotifier.
var _ domain.HostNotifier = (*Notifier)(nil)

// NewNotifier creates a new Notifier.
func NewNotifier(dataDir string) *Notifier {
	return &Notifier{
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		dataDir: dataDir,
	}
}

// Finish delivers reply to the caller. Unordered callers get nothing.
func (n *Notifier) Finish(ctx context.Context, caller domain.CallerContext, reply domain.Reply) error {
	if !caller.Ordered {
		return nil
	}
	reply.CallerID = caller.ID
	if !caller.VariableReturn {
		reply.Variables = nil
	}

	if caller.ReplyIsHTTP() {
		return postJSON(ctx, n.client, caller.ReplyTo, reply)
	}
	dir := caller.ReplyTo
	if dir == "" {
		dir = domain.RepliesDir(n.dataDir, caller.ID)
	}
	return ipc.NewReplyQueue(dir).Send(ctx, reply)
}

func postJSON(ctx context.Context, client *http.Client, url string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
