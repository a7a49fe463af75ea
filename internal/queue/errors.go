package queue

import "errors"

var (
	// ErrQueueClosed is returned when operating on a closed queue
	ErrQueueClosed = errors.New("queue is closed")

	// ErrQueueFull is returned when a bounded queue cannot accept more items
	ErrQueueFull = errors.New("queue is full")

	// ErrItemNotFound is returned when an item is not found
	ErrItemNotFound = errors.New("item not found")
)
