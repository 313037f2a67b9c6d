package gateway

import (
	"fmt"

	"github.com/Wyydra/yajanus/internal/adapter/driven/gateway/longpoll"
	"github.com/Wyydra/yajanus/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yajanus/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/yajanus/internal/config"
	"github.com/Wyydra/yajanus/internal/core/domain"
	"github.com/Wyydra/yajanus/internal/core/port"
)

// Factory builds a fresh transport per connection attempt. Each transport
// gets its own handle repository.
type Factory struct {
	gateway config.Gateway
	conn    config.Connection
}

func NewFactory(cfg config.Config) *Factory {
	return &Factory{
		gateway: cfg.Gateway,
		conn:    cfg.Connection,
	}
}

func (f *Factory) New(mode domain.TransportMode, sink port.EventSink) (port.Transport, error) {
	handles := memory.NewHandleRepository()

	switch mode {
	case domain.ModePersistent:
		if f.gateway.WebSocketURL == "" {
			return nil, fmt.Errorf("%s: no url configured", mode)
		}
		return ws.New(ws.Config{
			URL:                f.gateway.WebSocketURL,
			APISecret:          f.gateway.APISecret,
			KeepaliveInterval:  f.conn.KeepaliveInterval,
			TransactionTimeout: f.conn.TransactionTimeout,
			DialTimeout:        f.conn.DialTimeout,
		}, sink, handles), nil

	case domain.ModeDirectPoll:
		if f.gateway.HTTPURL == "" {
			return nil, fmt.Errorf("%s: no url configured", mode)
		}
		return longpoll.NewDirect(f.pollConfig(f.gateway.HTTPURL), sink, handles), nil

	case domain.ModeProxiedPoll:
		if f.gateway.ProxyURL == "" {
			return nil, fmt.Errorf("%s: no url configured", mode)
		}
		return longpoll.NewProxied(f.pollConfig(f.gateway.ProxyURL), sink, handles), nil
	}
	return nil, fmt.Errorf("unsupported transport mode %q", mode)
}

func (f *Factory) pollConfig(base string) longpoll.Config {
	return longpoll.Config{
		BaseURL:            base,
		APISecret:          f.gateway.APISecret,
		KeepaliveInterval:  f.conn.KeepaliveInterval,
		TransactionTimeout: f.conn.TransactionTimeout,
		RequestTimeout:     f.conn.RequestTimeout,
		RetryDelay:         f.conn.PollRetryDelay,
		MaxRetries:         f.conn.PollMaxRetries,
	}
}
