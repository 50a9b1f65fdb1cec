// Package order holds the canonical order list shared by every terminal.
//
// Store is the only owner of orders. Callers receive copies, and all
// mutations go through Submit, UpdateStatus and Remove, which are serialized
// by a single mutex. Subscribers registered with OnOrdersChanged observe every
// successful mutation in the order it was applied.
package order
