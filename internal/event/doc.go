// Package event defines the event model shared by the store, broadcaster, and
// client cache: the Event struct with its (timestamp, id) ordering, the
// priority tiers and kind classifier, and the on-disk record codec.
package event
