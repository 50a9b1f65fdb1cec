package cfg

import (
	"io"
	"time"

	"github.com/chefdemo-gingerale533/jojoburgerspos/internal"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/app/apps"
)

// ClientCfg configures where a ClientApp connects and how long it waits.
type ClientCfg struct {
	host    string
	timeout time.Duration
}

// NewClientCfg creates a new ClientCfg.
func NewClientCfg(host string, timeout time.Duration) *ClientCfg {
	return &ClientCfg{host: host, timeout: timeout}
}

// ClientFromEnv creates a new ClientCfg from the current environment.
func ClientFromEnv() *ClientCfg {
	return NewClientCfg(internal.ServerHost, time.Duration(internal.ClientTimeoutMS)*time.Millisecond)
}

// ApplyClientApp applies the ClientCfg to a ClientApp.
func (cfg ClientCfg) ApplyClientApp(app *apps.ClientApp) error {
	app.Host = cfg.host
	app.Timeout = cfg.timeout
	return nil
}

// OutputCfg sets where a ClientApp prints orders.
type OutputCfg struct {
	out io.Writer
}

// NewOutputCfg creates a new OutputCfg.
func NewOutputCfg(out io.Writer) *OutputCfg {
	return &OutputCfg{out: out}
}

// ApplyClientApp applies the OutputCfg to a ClientApp.
func (cfg OutputCfg) ApplyClientApp(app *apps.ClientApp) error {
	app.Out = cfg.out
	return nil
}
