package apps

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chefdemo-gingerale533/jojoburgerspos/internal"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/client"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/codec"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/validate"

	"github.com/pkg/errors"
)

// Client commands.
const (
	CmdList   = "list"
	CmdNew    = "new"
	CmdUpdate = "update"
	CmdRemove = "remove"
	CmdWatch  = "watch"
)

// ErrUsage is returned when the client is run with bad arguments.
var ErrUsage = errors.New("usage: list | new <item>... | update <id> <status> | remove <id> | watch")

// ClientAppCfg configures a ClientApp.
type ClientAppCfg interface {
	ApplyClientApp(*ClientApp) error
}

// ClientApp is a terminal that talks to the order server from the command line.
type ClientApp struct {
	Host    string        `validate:"required"`
	Port    uint16        `validate:"required"`
	Timeout time.Duration `validate:"min=1ms"`
	Out     io.Writer     `validate:"required"`
}

// NewClientApp creates a new ClientApp.
func NewClientApp(cfgs ...ClientAppCfg) (*ClientApp, error) {
	app := &ClientApp{
		Host:    internal.ServerHostFlag.Value.(string),
		Timeout: client.DefaultTimeout,
		Out:     os.Stdout,
	}
	for _, cfg := range cfgs {
		if err := cfg.ApplyClientApp(app); err != nil {
			return nil, errors.Wrap(err, "apply ClientApp cfg failed")
		}
	}
	if app.Port == 0 {
		app.Port = uint16(internal.Port)
	}
	if err := validate.Validate().Struct(app); err != nil {
		return nil, errors.Wrap(err, "validate ClientApp failed")
	}
	return app, nil
}

// Run connects to the server and executes the command in args.
func (app *ClientApp) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}
	c, err := client.NewClient(
		client.WithServerAddr(net.JoinHostPort(app.Host, strconv.Itoa(int(app.Port)))),
		client.WithTimeout(app.Timeout),
	)
	if err != nil {
		return errors.Wrap(err, "create client failed")
	}
	if err := c.Connect(ctx); err != nil {
		return errors.Wrap(err, "connect client failed")
	}
	defer c.Close()

	var orders []codec.Order
	switch cmd, rest := args[0], args[1:]; cmd {
	case CmdList:
		orders, err = c.ListOrders(ctx)
	case CmdNew:
		if len(rest) == 0 {
			return ErrUsage
		}
		orders, err = c.SubmitOrder(ctx, rest)
	case CmdUpdate:
		if len(rest) != 2 {
			return ErrUsage
		}
		id, perr := parseID(rest[0])
		if perr != nil {
			return perr
		}
		orders, err = c.UpdateOrder(ctx, id, rest[1])
	case CmdRemove:
		if len(rest) != 1 {
			return ErrUsage
		}
		id, perr := parseID(rest[0])
		if perr != nil {
			return perr
		}
		orders, err = c.RemoveOrder(ctx, id)
	case CmdWatch:
		show := func(orders []codec.Order) error {
			app.printOrders(orders)
			fmt.Fprintln(app.Out, "---")
			return nil
		}
		orders, err := c.ListOrders(ctx)
		if err != nil {
			return errors.Wrap(err, "load orders failed")
		}
		_ = show(orders)
		return errors.Wrap(c.Watch(ctx, show), "watch failed")
	default:
		return errors.Wrapf(ErrUsage, "unknown command %q", cmd)
	}
	if err != nil {
		return errors.Wrapf(err, "%s failed", args[0])
	}
	app.printOrders(orders)
	return nil
}

func (app *ClientApp) printOrders(orders []codec.Order) {
	if len(orders) == 0 {
		fmt.Fprintln(app.Out, "No orders")
		return
	}
	for _, o := range orders {
		fmt.Fprintf(app.Out, "Order ID: %d, Status: %s, Items: %s\n", o.ID, o.Status, strings.Join(o.Items, ", "))
	}
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrUsage, "bad order id %q", s)
	}
	return id, nil
}
