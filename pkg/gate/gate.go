package gate

import (
	"fmt"
	"sync"
)

// Gate serializes import and publish operations per agency. Operations on
// different agencies never contend.
type Gate struct {
	mutex   sync.Mutex
	blocked map[int]bool
}

func NewGate() *Gate {
	return &Gate{blocked: map[int]bool{}}
}

// TryBlock acquires the agency's slot. It returns false when another
// operation already holds it; it never waits.
func (g *Gate) TryBlock(agencyID int) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.blocked[agencyID] {
		return false
	}

	g.blocked[agencyID] = true
	return true
}

func (g *Gate) Unblock(agencyID int) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	delete(g.blocked, agencyID)
}

// ConflictError is returned to callers rejected by the gate.
type ConflictError struct {
	AgencyID int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("an operation is already running for agency %d", e.AgencyID)
}
