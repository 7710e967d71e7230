// Package component manages the lifecycle of the backends behind the
// pipeline tiers: redis connections, object stores and SQL databases.
//
// A Registry starts components in registration order, stops them in
// reverse, and reports their health.
package component
