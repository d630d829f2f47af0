package trader

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gregtusar/gswap-trader/pkg/models"
)

const (
	EventCycle    = "cycle"
	EventShutdown = "shutdown"
)

type JournalEntry struct {
	RunID     string                `json:"run_id"`
	Event     string                `json:"event"`
	Cycle     int64                 `json:"cycle,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
	State     CycleState            `json:"state,omitempty"`
	Snapshot  *models.PriceSnapshot `json:"snapshot,omitempty"`
	Trend     models.Trend          `json:"trend,omitempty"`
	Signal    *models.TradeSignal   `json:"signal,omitempty"`
	Result    *models.TradeResult   `json:"result,omitempty"`
	Portfolio *models.Portfolio     `json:"portfolio,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// Journal appends one JSON line per cycle. A nil *Journal discards entries.
type Journal struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

func NewJournal(path, runID string) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{
		runID:  runID,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (j *Journal) Append(entry JournalEntry) error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	entry.RunID = j.runID
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	if _, err := j.writer.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	return j.writer.Flush()
}

func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.writer.Flush(); err != nil {
		_ = j.file.Close()
		return err
	}
	return j.file.Close()
}
