package config

import "time"

// DefaultAddr is the default listen address for the relay.
const DefaultAddr = "0.0.0.0:5500"

// DefaultAuditDBName is the audit database file name inside ~/.tvlink.
const DefaultAuditDBName = "audit.db"

// DefaultSweepInterval is how often expired pairing sessions are swept.
const DefaultSweepInterval = 60 * time.Second
