// Package handler routes terminal requests to the order store.
//
// Reads are answered to the requesting terminal only. Mutations are not
// answered directly: the store notifies OrdersChanged, which broadcasts the
// new order list to every registered session, the requester included. Because
// the store runs its listeners under its own lock, every terminal sees
// mutations in the order they were applied. Failed requests are answered with
// an error envelope to the requester only.
package handler

import (
	"context"

	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/codec"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/log"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/metrics"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/order"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Error codes carried by error envelopes.
const (
	CodeValidation        = "validation_failed"
	CodeNotFound          = "not_found"
	CodeInvalidTransition = "invalid_transition"
	CodeBadRequest        = "bad_request"
	CodeUnknownType       = "unknown_type"
	CodeInternal          = "internal"
)

// Peer is the session a request came from.
type Peer interface {
	ID() uuid.UUID
	Enqueue(env codec.Envelope) error
}

// Broadcaster delivers an envelope to every registered session.
type Broadcaster interface {
	Broadcast(env codec.Envelope) int
}

// Handler applies requests to the order store.
type Handler struct {
	store       *order.Store
	broadcaster Broadcaster
	metrics     *metrics.Metrics
}

// HandlerCfg configures a Handler.
type HandlerCfg func(*Handler) error

// WithStore sets the order store.
func WithStore(store *order.Store) HandlerCfg {
	return func(h *Handler) error {
		h.store = store
		return nil
	}
}

// WithBroadcaster sets where order list changes are sent.
func WithBroadcaster(b Broadcaster) HandlerCfg {
	return func(h *Handler) error {
		h.broadcaster = b
		return nil
	}
}

// WithMetrics sets the metrics the handler reports to.
func WithMetrics(m *metrics.Metrics) HandlerCfg {
	return func(h *Handler) error {
		h.metrics = m
		return nil
	}
}

// NewHandler creates a new Handler.
func NewHandler(cfgs ...HandlerCfg) (*Handler, error) {
	h := &Handler{
		metrics: metrics.NopMetrics(),
	}
	for _, cfg := range cfgs {
		if err := cfg(h); err != nil {
			return nil, errors.Wrap(err, "apply Handler cfg failed")
		}
	}
	if h.store == nil {
		return nil, errors.New("handler requires an order store")
	}
	if h.broadcaster == nil {
		return nil, errors.New("handler requires a broadcaster")
	}
	return h, nil
}

// Handle applies one request from peer.
func (h *Handler) Handle(_ context.Context, peer Peer, env codec.Envelope) {
	l := logger.WithField("session", peer.ID().String()).WithFields(log.EnvelopeToFields(env))
	err := h.handleMessage(peer, env)
	if err == nil {
		return
	}
	code := errorCode(err)
	h.metrics.RequestErrors.With("code", code).Add(1)
	l.WithError(err).WithField("code", code).Info("request failed")
	reply, err := codec.NewEnvelope(codec.TypeError, codec.ErrorReply{
		Code:    code,
		Message: err.Error(),
	})
	if err != nil {
		l.WithError(err).Error("build error reply failed")
		return
	}
	if err := peer.Enqueue(reply); err != nil {
		l.WithError(err).Warn("enqueue error reply failed")
	}
}

// handleMessage applies env. Only get_orders is answered here; mutations
// reach the sender through the broadcast that follows them.
func (h *Handler) handleMessage(peer Peer, env codec.Envelope) error {
	switch env.Type {
	case codec.TypeGetOrders:
		h.metrics.Requests.With("type", env.Type).Add(1)
		var err error
		// enqueue under the store lock so the reply cannot overtake a later broadcast
		h.store.View(func(orders []order.Order) {
			var reply codec.Envelope
			if reply, err = OrdersListEnvelope(orders); err != nil {
				return
			}
			if qerr := peer.Enqueue(reply); qerr != nil {
				logger.WithError(qerr).WithField("session", peer.ID().String()).Warn("enqueue orders list failed")
			}
		})
		return err
	case codec.TypeNewOrder:
		h.metrics.Requests.With("type", env.Type).Add(1)
		var req codec.NewOrderRequest
		if err := env.Unmarshal(&req); err != nil {
			return badRequest(err)
		}
		o, err := h.store.Submit(req.Items)
		if err != nil {
			return errors.Wrap(err, "submit order failed")
		}
		logger.WithFields(log.OrderToFields(o)).Info("order submitted")
		return nil
	case codec.TypeUpdateOrder:
		h.metrics.Requests.With("type", env.Type).Add(1)
		var req codec.UpdateOrderRequest
		if err := env.Unmarshal(&req); err != nil {
			return badRequest(err)
		}
		status, err := order.ParseStatus(req.Status)
		if err != nil {
			return errors.Wrap(err, "parse status failed")
		}
		o, err := h.store.UpdateStatus(req.ID, status)
		if err != nil {
			return errors.Wrap(err, "update order failed")
		}
		logger.WithFields(log.OrderToFields(o)).Info("order updated")
		return nil
	case codec.TypeRemoveOrder:
		h.metrics.Requests.With("type", env.Type).Add(1)
		var req codec.RemoveOrderRequest
		if err := env.Unmarshal(&req); err != nil {
			return badRequest(err)
		}
		if err := h.store.Remove(req.ID); err != nil {
			return errors.Wrap(err, "remove order failed")
		}
		logger.WithField("order", req.ID).Info("order removed")
		return nil
	}
	h.metrics.Requests.With("type", "unknown").Add(1)
	return errors.Wrapf(ErrUnknownType, "%q", env.Type)
}

// OrdersChanged broadcasts orders to every session. It is meant to be
// registered with order.Store.OnOrdersChanged.
func (h *Handler) OrdersChanged(orders []order.Order) {
	h.metrics.Orders.Set(float64(len(orders)))
	env, err := OrdersListEnvelope(orders)
	if err != nil {
		logger.WithError(err).Error("build orders list failed")
		return
	}
	n := h.broadcaster.Broadcast(env)
	logger.WithFields(logrus.Fields{
		"orders":   len(orders),
		"sessions": n,
	}).Debug("broadcast orders list")
}

// OrdersListEnvelope builds an orders_list envelope.
func OrdersListEnvelope(orders []order.Order) (codec.Envelope, error) {
	return codec.NewEnvelope(codec.TypeOrdersList, codec.FromOrders(orders))
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, order.ErrValidation):
		return CodeValidation
	case errors.Is(err, order.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, order.ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrBadRequest):
		return CodeBadRequest
	case errors.Is(err, ErrUnknownType):
		return CodeUnknownType
	default:
		return CodeInternal
	}
}

func badRequest(err error) error {
	return errors.Wrap(ErrBadRequest, err.Error())
}
