package ranking

// Positions hands out consecutive positions for one refresh pass.
// int64 is the column type and outlasts any realistic ranking length.
type Positions struct {
	next int64
}

func NewPositions(start int64) *Positions {
	return &Positions{next: start}
}

func (p *Positions) Next() int64 {
	v := p.next
	p.next++
	return v
}

// Issued reports how many positions were handed out since start.
func (p *Positions) Issued(start int64) int64 {
	return p.next - start
}
