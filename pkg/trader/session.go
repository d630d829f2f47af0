package trader

import (
	"sync/atomic"
	"time"
)

// Session holds the counters of one process lifetime. It is owned by the
// trader and handed to the executor, never shared through globals.
type Session struct {
	startedAt        time.Time
	totalTrades      atomic.Int64
	successfulTrades atomic.Int64
	cycles           atomic.Int64
}

func NewSession() *Session {
	return &Session{startedAt: time.Now().UTC()}
}

// RecordSuccess counts a successful non-zero execution. Failed or skipped
// executions are not counted at all.
func (s *Session) RecordSuccess() {
	s.totalTrades.Add(1)
	s.successfulTrades.Add(1)
}

func (s *Session) NextCycle() int64 {
	return s.cycles.Add(1)
}

func (s *Session) TotalTrades() int64      { return s.totalTrades.Load() }
func (s *Session) SuccessfulTrades() int64 { return s.successfulTrades.Load() }
func (s *Session) Cycles() int64           { return s.cycles.Load() }
func (s *Session) StartedAt() time.Time    { return s.startedAt }
