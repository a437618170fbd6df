package report

// DefaultMaxSamples caps the error descriptors kept per stage call
const DefaultMaxSamples = 100

// Collector accumulates row errors for one stage call.
// It keeps every count but only the first maxSamples descriptors.
type Collector struct {
	maxSamples int
	total      int
	samples    []RowError
	byRule     map[string]int
}

// NewCollector creates a collector keeping at most maxSamples descriptors
func NewCollector(maxSamples int) *Collector {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Collector{
		maxSamples: maxSamples,
		samples:    make([]RowError, 0),
		byRule:     make(map[string]int),
	}
}

// Add records a row error
func (c *Collector) Add(err RowError) {
	c.total++
	c.byRule[err.Rule]++
	if len(c.samples) < c.maxSamples {
		c.samples = append(c.samples, err)
	}
}

// Merge appends everything recorded by other, in order
func (c *Collector) Merge(other *Collector) {
	if other == nil {
		return
	}
	for rule, n := range other.byRule {
		c.byRule[rule] += n
	}
	c.total += other.total
	for _, err := range other.samples {
		if len(c.samples) >= c.maxSamples {
			break
		}
		c.samples = append(c.samples, err)
	}
}

// Count returns the number of errors recorded, including unsampled ones
func (c *Collector) Count() int {
	return c.total
}

// Samples returns a copy of the retained descriptors
func (c *Collector) Samples() []RowError {
	out := make([]RowError, len(c.samples))
	copy(out, c.samples)
	return out
}

// RuleCounts returns a copy of the per-rule error counts
func (c *Collector) RuleCounts() map[string]int {
	out := make(map[string]int, len(c.byRule))
	for rule, n := range c.byRule {
		out[rule] = n
	}
	return out
}
