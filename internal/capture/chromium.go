// Package capture takes PNG snapshots of the rendered day view with a
// headless Chromium.
package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	appLog "daylayout/internal/log"
)

const (
	DefaultWidth   = 984
	DefaultHeight  = 1304
	DefaultTimeout = 30 * time.Second

	// ReadySelector matches the root element of /day once it has rendered.
	ReadySelector = `[data-ready="true"]`
)

// Options configures one snapshot.
type Options struct {
	// URL of the page, e.g. "http://127.0.0.1:8080/day?days=1".
	URL string
	// OutputPath receives the PNG. Parent directories are created.
	OutputPath string

	Width   int
	Height  int
	Timeout time.Duration

	// Settle is an extra wait after the ready marker shows up.
	Settle time.Duration

	// Username and Password are sent as HTTP basic auth when set.
	Username string
	Password string
}

var (
	ErrNoURL    = errors.New("capture: URL is required")
	ErrNoOutput = errors.New("capture: OutputPath is required")
)

func (o Options) normalized() (Options, error) {
	if o.URL == "" {
		return o, ErrNoURL
	}
	if o.OutputPath == "" {
		return o, ErrNoOutput
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Settle < 0 {
		o.Settle = 0
	}
	return o, nil
}

// tasks is the chromedp action list for o, writing the screenshot to buf.
func (o Options) tasks(buf *[]byte) chromedp.Tasks {
	var t chromedp.Tasks
	if o.Username != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(o.Username + ":" + o.Password))
		t = append(t,
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers{"Authorization": "Basic " + cred}),
		)
	}
	t = append(t,
		chromedp.EmulateViewport(int64(o.Width), int64(o.Height)),
		chromedp.Navigate(o.URL),
		chromedp.WaitVisible(ReadySelector, chromedp.ByQuery),
	)
	if o.Settle > 0 {
		t = append(t, chromedp.Sleep(o.Settle))
	}
	return append(t, chromedp.FullScreenshot(buf, 100))
}

// SnapshotPNG loads opts.URL in a fresh headless browser tab, waits for the
// ready marker and writes a full-page PNG to opts.OutputPath.
func SnapshotPNG(parent context.Context, opts Options) error {
	opts, err := opts.normalized()
	if err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parent)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	started := time.Now()
	var png []byte
	if err := chromedp.Run(ctx, opts.tasks(&png)); err != nil {
		return fmt.Errorf("capture: chromedp run: %w", err)
	}

	if dir := filepath.Dir(opts.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("capture: create output dir: %w", err)
		}
	}
	// 파일을 임시 이름으로 쓴 뒤 교체
	tmp := opts.OutputPath + ".tmp"
	if err := os.WriteFile(tmp, png, 0o644); err != nil {
		return fmt.Errorf("capture: write PNG: %w", err)
	}
	if err := os.Rename(tmp, opts.OutputPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("capture: replace PNG: %w", err)
	}

	appLog.Info("capture: snapshot written",
		"path", opts.OutputPath,
		"bytes", len(png),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return nil
}
