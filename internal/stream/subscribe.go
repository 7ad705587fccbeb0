package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/smukkama/sensor-dashboard/internal/protocol"
	"github.com/smukkama/sensor-dashboard/internal/rtdb"
	"github.com/smukkama/sensor-dashboard/pkg/config"
	"github.com/smukkama/sensor-dashboard/pkg/logger"
)

// ErrLiveUnavailable wraps every failure to start the live adapter.
var ErrLiveUnavailable = errors.New("live stream unavailable")

// LiveSource is a connected Watcher that can be released.
type LiveSource interface {
	Watcher
	Close() error
}

// DialFunc connects to the remote store.
type DialFunc func(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (LiveSource, error)

// DialStore connects to the Redis-backed store. It is the default DialFunc.
func DialStore(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (LiveSource, error) {
	c, err := rtdb.Dial(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// SubscribeOptions configures Subscribe.
type SubscribeOptions struct {
	Store  config.StoreConfig
	Dial   DialFunc // defaults to DialStore
	Mock   MockOptions
	Logger *zap.Logger
}

// Subscribe starts the live adapter when the store configuration is
// complete and falls back to the mock generator otherwise, or when the live
// adapter cannot be established. Either way onFrame receives the same
// stream of frames.
func Subscribe(ctx context.Context, opts SubscribeOptions, onFrame func(protocol.Frame)) (Cancel, Mode) {
	log := logger.OrNop(opts.Logger)
	if opts.Mock.Logger == nil {
		opts.Mock.Logger = log
	}

	if missing := opts.Store.Missing(); len(missing) > 0 {
		log.Info("store configuration incomplete, using mock data", zap.Strings("missing", missing))
		return StartMock(onFrame, opts.Mock), ModeMock
	}

	cancel, err := tryStartLive(ctx, opts, log, onFrame)
	if err != nil {
		log.Warn("using mock data", zap.Error(err))
		return StartMock(onFrame, opts.Mock), ModeMock
	}
	return cancel, ModeLive
}

func tryStartLive(ctx context.Context, opts SubscribeOptions, log *zap.Logger, onFrame func(protocol.Frame)) (Cancel, error) {
	dial := opts.Dial
	if dial == nil {
		dial = DialStore
	}

	if opts.Store.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Store.DialTimeout)
		defer cancel()
	}

	src, err := dial(ctx, opts.Store, log)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLiveUnavailable, err)
	}

	stop, err := StartLive(ctx, src, LiveOptions{
		CurrentKey: opts.Store.CurrentKey(),
		HistoryKey: opts.Store.HistoryKey(),
		Now:        opts.Mock.Now,
		Logger:     log,
	}, onFrame)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("%w: %w", ErrLiveUnavailable, err)
	}

	return Cancel(sync.OnceFunc(func() {
		stop()
		src.Close()
	})), nil
}
