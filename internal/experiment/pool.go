package experiment

import "slices"

// Pool holds participants waiting for a partner, oldest first.
type Pool struct {
	waiting []string
}

// Enqueue adds id and, once the pool holds an even number of ids, removes
// and returns the two oldest as a pair.
func (p *Pool) Enqueue(id string) (first, second string, paired bool) {
	p.waiting = append(p.waiting, id)
	if len(p.waiting)%2 != 0 {
		return "", "", false
	}
	first, second = p.waiting[0], p.waiting[1]
	p.waiting = slices.Delete(p.waiting, 0, 2)
	return first, second, true
}

func (p *Pool) Remove(id string) bool {
	index := slices.Index(p.waiting, id)
	if index < 0 {
		return false
	}
	p.waiting = slices.Delete(p.waiting, index, index+1)
	return true
}

func (p *Pool) Len() int {
	return len(p.waiting)
}

func (p *Pool) Waiting() []string {
	return slices.Clone(p.waiting)
}
