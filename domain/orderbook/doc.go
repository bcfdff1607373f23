// Package orderbook holds the per-instrument price-level book: two
// red-black trees (bids and asks) keyed by decimal price, the
// Snapshot/Delta update variant that mutates them, and the projector
// that renders a book into an immutable View for delivery.
//
// An OrderBook is single-writer. Callers serialise mutation and view
// construction themselves (see package service).
package orderbook
