package market

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/produvia/kryptos-go/internal/types"
	"github.com/produvia/kryptos-go/pkg/errors"
)

// Binance API error codes relevant for classification.
const (
	binanceCodeTooManyRequests = -1003
	binanceCodeUnauthorized    = -1002
	binanceCodeInvalidAPIKey   = -2014
	binanceCodeRejectedAPIKey  = -2015
	binanceCodeServiceShutdown = -1016
)

// BinanceSource serves history windows and latest bars from the Binance
// klines API. Paper and live runs use it behind the HistorySource boundary.
type BinanceSource struct {
	client   *binance.Client
	interval string
}

// NewBinanceSource creates a source for the given kline interval
// (e.g. "1m", "1d"). API credentials may be empty for public market data.
func NewBinanceSource(apiKey, secretKey, interval string) *BinanceSource {
	return &BinanceSource{
		client:   binance.NewClient(apiKey, secretKey),
		interval: interval,
	}
}

// History implements HistorySource.
func (b *BinanceSource) History(ctx context.Context, symbol string, window int, end time.Time) ([]types.Bar, error) {
	svc := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(b.interval).
		Limit(window)

	if !end.IsZero() {
		svc = svc.EndTime(end.UnixMilli())
	}

	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, classifyExchangeError(err)
	}

	bars := make([]types.Bar, 0, len(klines))

	for _, k := range klines {
		bar, err := klineToBar(k)
		if err != nil {
			return nil, err
		}

		bars = append(bars, bar)
	}

	return bars, nil
}

// Latest returns the most recent closed bar for the symbol.
func (b *BinanceSource) Latest(ctx context.Context, symbol string) (types.Bar, error) {
	bars, err := b.History(ctx, symbol, 1, time.Time{})
	if err != nil {
		return types.Bar{}, err
	}

	if len(bars) == 0 {
		return types.Bar{}, errors.NewKindf(errors.ErrCodeNoDataForBar, errors.KindMissingData,
			"no kline returned for %s", symbol)
	}

	return bars[len(bars)-1], nil
}

func klineToBar(k *binance.Kline) (types.Bar, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeHistoryFetchFailed, "failed to parse kline open", err)
	}

	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeHistoryFetchFailed, "failed to parse kline high", err)
	}

	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeHistoryFetchFailed, "failed to parse kline low", err)
	}

	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeHistoryFetchFailed, "failed to parse kline close", err)
	}

	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeHistoryFetchFailed, "failed to parse kline volume", err)
	}

	return types.Bar{
		Time:   time.UnixMilli(k.OpenTime).UTC(),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}, nil
}

// classifyExchangeError maps transport and API failures onto error kinds so
// the runtime and lifecycle controller can switch on them.
func classifyExchangeError(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case binanceCodeTooManyRequests:
			return errors.WrapKind(errors.ErrCodeRateLimited, errors.KindTransient, "exchange rate limit hit", err)
		case binanceCodeUnauthorized, binanceCodeInvalidAPIKey, binanceCodeRejectedAPIKey:
			return errors.WrapKind(errors.ErrCodeExchangeAuth, errors.KindCredential, "exchange rejected credentials", err)
		case binanceCodeServiceShutdown:
			return errors.WrapKind(errors.ErrCodeHistoryFetchFailed, errors.KindTransient, "exchange temporarily unavailable", err)
		default:
			return errors.Wrap(errors.ErrCodeHistoryFetchFailed, "exchange request failed", err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.WrapKind(errors.ErrCodeExchangeTimeout, errors.KindTransient, "exchange request timed out", err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return errors.WrapKind(errors.ErrCodeExchangeTimeout, errors.KindTransient, "exchange request timed out", err)
	}

	return errors.Wrap(errors.ErrCodeHistoryFetchFailed, "exchange request failed", err)
}

// PollingSource adapts a live exchange feed into a BarSource by polling the
// latest closed bar once per interval until the configured end time.
type PollingSource struct {
	source   *BinanceSource
	symbol   string
	interval time.Duration
	end      time.Time
	lastSeen time.Time
}

// NewPollingSource creates a live BarSource over the exchange feed.
func NewPollingSource(source *BinanceSource, symbol string, interval time.Duration, end time.Time) *PollingSource {
	return &PollingSource{
		source:   source,
		symbol:   symbol,
		interval: interval,
		end:      end,
		lastSeen: time.Time{},
	}
}

// Next implements BarSource. It blocks until the next interval tick, then
// fetches the latest bar. A fetch failure yields an empty snapshot with the
// error so the runtime can treat the bar as a gap.
func (p *PollingSource) Next(ctx context.Context) (types.Bar, bool, error) {
	for {
		if !p.end.IsZero() && time.Now().After(p.end) {
			return types.Bar{}, false, nil
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()

			return types.Bar{}, false, ctx.Err()
		case <-timer.C:
		}

		bar, err := p.source.Latest(ctx, p.symbol)
		if err != nil {
			return types.Bar{Time: time.Now().UTC()}, true, err
		}

		// Skip duplicate bars when the exchange has not rolled over yet.
		if !bar.Time.After(p.lastSeen) {
			continue
		}

		p.lastSeen = bar.Time

		return bar, true, nil
	}
}
