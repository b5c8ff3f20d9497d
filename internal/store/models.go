package store

import "time"

// TopologyRecord persists a registered child's URI and last-known state for
// a named Nexus, so a crashed Nexus host can rehydrate its registered
// children and re-open them on restart. This is bookkeeping for restart
// recovery, not part of the core's own persisted state — the core itself
// persists nothing beyond what children carry.
type TopologyRecord struct {
	ID             uint64 `gorm:"primaryKey"`
	NexusName      string `gorm:"column:nexus_name;index;not null"`
	URI            string `gorm:"column:uri;not null"`
	ParentName     string `gorm:"column:parent_name;not null"`
	LastKnownState string `gorm:"column:last_known_state;not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName pins the GORM table name so it matches the SQL migration's
// CREATE TABLE statement exactly.
func (TopologyRecord) TableName() string { return "topology_records" }

// AllModels lists every model AutoMigrate must know about (the SQLite dev
// path). The PostgreSQL path uses the golang-migrate SQL migrations instead.
func AllModels() []any {
	return []any{&TopologyRecord{}}
}
