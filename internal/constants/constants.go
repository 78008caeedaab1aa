package constants

import "time"

const (
	AuditFlushInterval = 30 * time.Second
	// 40 server ticks at 20 TPS.
	SettleDelay = 2 * time.Second
)

const (
	DatabaseTimeout = 5 * time.Second
	RequestTimeout  = 30 * time.Second
	ClientTimeout   = 10 * time.Second
)

const (
	SQLiteMaxOpenConns = 1
	DBBatchSize        = 100
	DefaultListLimit   = 45
	MaxListLimit       = 1000
)

const (
	WorkerCount     = 4
	WorkerQueueSize = 1024
)

const (
	ShutdownTimeout = 10 * time.Second
)
