// Package client implements the terminal side of the order protocol.
//
// A point-of-sale, kiosk or kitchen display connects with Connect and issues
// requests with ListOrders, SubmitOrder, UpdateOrder and RemoveOrder. Each
// request waits for the next orders_list or error envelope. Because the server
// broadcasts every accepted change to all terminals, that envelope may have
// been caused by another terminal; it always carries the current list.
//
// Watch follows the broadcast stream and is what a kitchen display uses for its
// live view. A terminal whose connection drops must reconnect and call
// ListOrders again, since the server does not replay missed messages.
package client
