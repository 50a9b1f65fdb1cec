package codec

import (
	"encoding/json"

	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/order"

	"github.com/pkg/errors"
)

// Message types.
const (
	TypeGetOrders   = "get_orders"
	TypeNewOrder    = "new_order"
	TypeUpdateOrder = "update_order"
	TypeRemoveOrder = "remove_order"
	TypeOrdersList  = "orders_list"
	TypeError       = "error"
)

// Envelope is one protocol message: a type and the JSON encoded payload for it.
type Envelope struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// NewEnvelope builds an envelope of the given type around payload.
// A nil payload produces an envelope with empty data.
func NewEnvelope(typ string, payload interface{}) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: typ}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, errors.Wrapf(err, "marshal %s payload failed", typ)
	}
	return Envelope{Type: typ, Data: string(b)}, nil
}

// Unmarshal decodes the envelope data into v.
func (e Envelope) Unmarshal(v interface{}) error {
	if e.Data == "" {
		return errors.Errorf("%s envelope has no data", e.Type)
	}
	if err := json.Unmarshal([]byte(e.Data), v); err != nil {
		return errors.Wrapf(err, "unmarshal %s payload failed", e.Type)
	}
	return nil
}

// NewOrderRequest is the payload of a new_order envelope.
type NewOrderRequest struct {
	Items []string `json:"items"`
}

// UpdateOrderRequest is the payload of an update_order envelope.
type UpdateOrderRequest struct {
	ID     uint64 `json:"id"`
	Status string `json:"status"`
}

// RemoveOrderRequest is the payload of a remove_order envelope.
type RemoveOrderRequest struct {
	ID uint64 `json:"id"`
}

// Order is the wire representation of an order.
type Order struct {
	ID     uint64   `json:"id"`
	Items  []string `json:"items"`
	Status string   `json:"status"`
}

// OrdersList is the payload of an orders_list envelope.
type OrdersList struct {
	Orders []Order `json:"orders"`
}

// FromOrders converts store orders to their wire representation.
func FromOrders(orders []order.Order) OrdersList {
	list := OrdersList{Orders: make([]Order, len(orders))}
	for i, o := range orders {
		list.Orders[i] = Order{
			ID:     o.ID,
			Items:  o.Items,
			Status: o.Status.String(),
		}
	}
	return list
}

// ErrorReply is the payload of an error envelope.
type ErrorReply struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
