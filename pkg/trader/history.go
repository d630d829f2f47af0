package trader

import (
	"time"

	"github.com/gregtusar/gswap-trader/pkg/models"
	"github.com/shopspring/decimal"
)

const (
	DefaultHistoryCapacity = 10
	trendWindow            = 3
)

// PriceHistory keeps the most recent prices in arrival order and evicts the
// oldest once capacity is reached.
type PriceHistory struct {
	points   []models.PricePoint
	capacity int
}

func NewPriceHistory(capacity int) *PriceHistory {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &PriceHistory{
		points:   make([]models.PricePoint, 0, capacity+1),
		capacity: capacity,
	}
}

func (h *PriceHistory) Record(price decimal.Decimal, ts time.Time) {
	h.points = append(h.points, models.PricePoint{Price: price, Timestamp: ts})
	if len(h.points) > h.capacity {
		h.points = append(h.points[:0], h.points[len(h.points)-h.capacity:]...)
	}
}

func (h *PriceHistory) Len() int {
	return len(h.points)
}

func (h *PriceHistory) Points() []models.PricePoint {
	out := make([]models.PricePoint, len(h.points))
	copy(out, h.points)
	return out
}

// Trend compares the last three samples. Anything other than a strict run in
// one direction, ties included, is STABLE.
func (h *PriceHistory) Trend() models.Trend {
	if len(h.points) < trendWindow {
		return models.TrendStable
	}
	recent := h.points[len(h.points)-trendWindow:]
	a, b, c := recent[0].Price, recent[1].Price, recent[2].Price

	switch {
	case c.GreaterThan(b) && b.GreaterThan(a):
		return models.TrendUp
	case c.LessThan(b) && b.LessThan(a):
		return models.TrendDown
	default:
		return models.TrendStable
	}
}
