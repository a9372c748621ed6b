package types

// Event represents a structured state change emitted by the settlement
// engine. Attributes are flat string pairs so downstream consumers can
// index them without schema knowledge.
type Event struct {
	Type       string
	Attributes map[string]string
}
