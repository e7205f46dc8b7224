// Package stores provides persistence for deployment records, health
// check history, alerts and the operator activity log. The default
// implementation is SQLite with embedded schema migrations.
package stores
