package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"ratewatch/internal/config"
	"ratewatch/internal/domain/model"
	"ratewatch/pkg/logger"
)

const (
	historyDateLayout = "2006-01-02"

	// rowValueScript reads the rate cell for one currency row. The
	// data-rate-value attribute is preferred over the rendered text.
	rowValueScript = `(() => {
		const el = document.querySelector(%q);
		if (!el) return null;
		return el.getAttribute('data-rate-value') || el.textContent;
	})()`

	historyRowsScript = `(() => Array.from(document.querySelectorAll('table tr')).slice(1).map(tr => {
		const td = tr.querySelectorAll('td');
		if (td.length < 2) return null;
		return {date: td[0].textContent.trim(), rate: td[1].textContent.trim()};
	}).filter(Boolean))()`
)

type pairTarget struct {
	selector string
	invert   bool
}

// Browser fetches rates by driving a headless Chrome session against the
// configured page. Each fetch acquires its own browser context from a
// shared allocator, so concurrent fetches for different pairs never share a
// session; cancelling the call context tears the session down.
type Browser struct {
	url           string
	historyURL    string
	tableSelector string
	id            string

	targets map[model.CurrencyPair]pairTarget

	allocCtx    context.Context
	allocCancel context.CancelFunc

	log *logger.Logger
}

func NewBrowser(cfg config.SourceConfig, log *logger.Logger) (*Browser, error) {
	targets := make(map[model.CurrencyPair]pairTarget, len(cfg.Pairs))
	for _, pc := range cfg.Pairs {
		pair, err := model.NewPair(pc.Base, pc.Quote)
		if err != nil {
			return nil, err
		}

		code := pc.Code
		if code == "" {
			code = pair.Base.String()
		}
		selector := pc.Selector
		if selector == "" {
			selector = fmt.Sprintf(`#rate-list-body .rate-row[data-currency="%s"] .rate-value`, code)
		}
		targets[pair] = pairTarget{selector: selector, invert: pc.Invert}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.NoSandbox,
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		url:           cfg.URL,
		historyURL:    cfg.HistoryURL,
		tableSelector: cfg.TableSelector,
		id:            "chromedp:" + cfg.URL,
		targets:       targets,
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		log:           log,
	}, nil
}

func (b *Browser) ID() string {
	return b.id
}

// Close releases the browser allocator and every session derived from it.
func (b *Browser) Close() {
	b.allocCancel()
}

func (b *Browser) Fetch(ctx context.Context, pair model.CurrencyPair) (*model.RawReading, error) {
	target, ok := b.targets[pair]
	if !ok {
		return nil, &FetchError{Kind: KindUnsupportedPair, Pair: pair}
	}

	tabCtx, release := b.acquireSession(ctx, pair)
	defer release()

	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(b.url),
		chromedp.WaitVisible(b.tableSelector, chromedp.ByQuery),
	); err != nil {
		return nil, b.classify(ctx, pair, err)
	}

	var raw *string
	script := fmt.Sprintf(rowValueScript, target.selector)
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(script, &raw)); err != nil {
		return nil, b.classify(ctx, pair, err)
	}
	if raw == nil {
		return nil, &FetchError{
			Kind: KindElementNotFound,
			Pair: pair,
			Err:  fmt.Errorf("no rate row matches %q", target.selector),
		}
	}

	value, err := parseRate(*raw)
	if err != nil {
		return nil, &FetchError{Kind: KindParseError, Pair: pair, Err: err}
	}
	if target.invert {
		if value == 0 {
			return nil, &FetchError{Kind: KindParseError, Pair: pair, Err: fmt.Errorf("zero rate cannot be inverted")}
		}
		value = 1 / value
	}

	return &model.RawReading{Value: value, CapturedAt: time.Now().UTC()}, nil
}

// FetchHistory scrapes the historical-rates table: one row per day, date in
// the first column, rate in the second. Rows that fail to parse are skipped.
func (b *Browser) FetchHistory(ctx context.Context, pair model.CurrencyPair) ([]model.RawReading, error) {
	if b.historyURL == "" {
		return nil, nil
	}
	target, ok := b.targets[pair]
	if !ok {
		return nil, &FetchError{Kind: KindUnsupportedPair, Pair: pair}
	}

	tabCtx, release := b.acquireSession(ctx, pair)
	defer release()

	var rows []struct {
		Date string `json:"date"`
		Rate string `json:"rate"`
	}
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(b.historyURL),
		chromedp.WaitVisible("table", chromedp.ByQuery),
		chromedp.Evaluate(historyRowsScript, &rows),
	); err != nil {
		return nil, b.classify(ctx, pair, err)
	}
	if len(rows) == 0 {
		return nil, &FetchError{Kind: KindElementNotFound, Pair: pair, Err: fmt.Errorf("history table has no data rows")}
	}

	readings := make([]model.RawReading, 0, len(rows))
	for _, row := range rows {
		capturedAt, err := time.Parse(historyDateLayout, row.Date)
		if err != nil {
			b.log.Warn("skipping history row with unparsable date", "date", row.Date, "pair", pair.String())
			continue
		}
		value, err := parseRate(row.Rate)
		if err != nil {
			b.log.Warn("skipping history row with unparsable rate", "rate", row.Rate, "pair", pair.String())
			continue
		}
		if target.invert {
			if value == 0 {
				b.log.Warn("skipping history row with zero rate", "date", row.Date, "pair", pair.String())
				continue
			}
			value = 1 / value
		}
		readings = append(readings, model.RawReading{Value: value, CapturedAt: capturedAt.UTC()})
	}

	sort.Slice(readings, func(i, j int) bool {
		return readings[i].CapturedAt.Before(readings[j].CapturedAt)
	})
	return readings, nil
}

// acquireSession creates a fresh browser context tied to the caller's
// context: when the caller's deadline fires, the session is cancelled and
// the tab torn down rather than left waiting.
func (b *Browser) acquireSession(ctx context.Context, pair model.CurrencyPair) (context.Context, context.CancelFunc) {
	tabCtx, tabCancel := chromedp.NewContext(b.allocCtx)

	sessionID := uuid.NewString()
	b.log.Debug("browser session acquired", "session", sessionID, "pair", pair.String())

	stop := context.AfterFunc(ctx, tabCancel)

	release := func() {
		stop()
		tabCancel()
		b.log.Debug("browser session released", "session", sessionID, "pair", pair.String())
	}
	return tabCtx, release
}

func (b *Browser) classify(ctx context.Context, pair model.CurrencyPair, err error) *FetchError {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return &FetchError{Kind: KindNavigationTimeout, Pair: pair, Err: err}
	case errors.Is(ctx.Err(), context.Canceled):
		return &FetchError{Kind: KindSessionError, Pair: pair, Err: fmt.Errorf("fetch cancelled: %w", err)}
	default:
		return &FetchError{Kind: KindSessionError, Pair: pair, Err: err}
	}
}
