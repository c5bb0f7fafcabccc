package render

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Chrome implements Browser on top of a headless Chrome instance managed by
// chromedp.
type Chrome struct {
	// PageTimeout bounds a single Navigate call, defaults to 60s.
	PageTimeout time.Duration
	// SettleDelay is how long to wait after load for scripts to fill in the
	// page, defaults to 2s.
	SettleDelay time.Duration
}

type chromeSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	pageTimeout time.Duration
	settleDelay time.Duration
}

func (b Chrome) NewSession(ctx context.Context) (Session, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(defaultUserAgent),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	cancel := func() {
		cancelTab()
		cancelAlloc()
	}

	// starts the browser process eagerly so a missing Chrome binary surfaces
	// here rather than on the first navigation
	err := chromedp.Run(tabCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to launch headless browser: %w", err)
	}

	pageTimeout := b.PageTimeout
	if pageTimeout == 0 {
		pageTimeout = time.Second * 60
	}
	settleDelay := b.SettleDelay
	if settleDelay == 0 {
		settleDelay = time.Second * 2
	}
	return &chromeSession{
		ctx:         tabCtx,
		cancel:      cancel,
		pageTimeout: pageTimeout,
		settleDelay: settleDelay,
	}, nil
}

func (s *chromeSession) Navigate(url string) (string, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.pageTimeout)
	defer cancel()

	var content string
	err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.Sleep(s.settleDelay),
		chromedp.OuterHTML("html", &content),
	)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", url, err)
	}
	return content, nil
}

func (s *chromeSession) Close() error {
	s.cancel()
	return nil
}
