// Package plugin holds the plugin registry: which plugins exist, which are
// enabled, and what capabilities they expose to the rest of the system.
package plugin

// Plugin is the minimal plugin contract. Additional capabilities are
// expressed through optional interfaces checked at runtime; plugins that
// implement scheduler.ServiceProvider contribute scheduled services, all
// others contribute none.
type Plugin interface {
	// ID is the stable identifier used by config and the scheduler.
	ID() string
	// Name is the human-readable display name shown in schedule listings.
	Name() string
}
