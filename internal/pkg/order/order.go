package order

// Order is a snapshot of one order.
type Order struct {
	ID     uint64
	Items  []string
	Status Status
}

func (o Order) clone() Order {
	o.Items = append([]string(nil), o.Items...)
	return o
}
