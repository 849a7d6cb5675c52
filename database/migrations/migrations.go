// Package migrations holds the versioned SQL schema. Each migration
// registers itself from init(); the CLI imports this package for effect.
// MongoDB needs no migrations: its indexes are ensured at boot.
package migrations
