package cache

import "fmt"

// Priority controls eviction and replay order. High priority entries are
// never evicted to make room. The zero value is Medium.
type Priority int

const (
	Medium Priority = iota
	Low
	High
)

// rank is the stored ordering: low 0, medium 1, high 2.
func (p Priority) rank() int {
	switch p {
	case Low:
		return 0
	case High:
		return 2
	default:
		return 1
	}
}

func priorityFromRank(n int) Priority {
	switch {
	case n <= 0:
		return Low
	case n >= 2:
		return High
	default:
		return Medium
	}
}

func (p Priority) String() string {
	switch p {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

// ParsePriority accepts "low", "medium" or "high". Empty means medium.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return Low, nil
	case "", "medium":
		return Medium, nil
	case "high":
		return High, nil
	}
	return 0, fmt.Errorf("unknown cache priority %q", s)
}

func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
