package domain

// TurnEvent describes why the turn is advancing.
type TurnEvent int

const (
	// TurnPass follows a successful non-bomb draw: one owed draw consumed.
	TurnPass TurnEvent = iota
	// TurnSkip consumes one owed draw without drawing.
	TurnSkip
	// TurnAttack ends the turn and hands the next player two owed draws.
	TurnAttack
)

// NextAlivePlayer rotates among alive players in stable join order.
// If currentID is not found among alive players (just eliminated, or game
// start) rotation restarts at the first alive player. A sole survivor is
// returned unconditionally.
func NextAlivePlayer(currentID string, players []*Player, direction int) string {
	alive := make([]*Player, 0, len(players))
	for _, p := range players {
		if p.Alive {
			alive = append(alive, p)
		}
	}
	if len(alive) == 0 {
		return currentID
	}
	if len(alive) == 1 {
		return alive[0].ID
	}

	cur := -1
	for i, p := range alive {
		if p.ID == currentID {
			cur = i
			break
		}
	}
	if cur == -1 {
		return alive[0].ID
	}

	next := (cur + direction) % len(alive)
	if next < 0 {
		next += len(alive)
	}
	return alive[next].ID
}

// AdvanceTurn applies a turn event against the current player and owed-draw
// stack, returning the next turn holder and their stack.
//
// Attack always hands off with a stack of 2, regardless of how many draws
// the attacker still owed: chained attacks reset flat rather than
// accumulate. Skip and Pass consume one owed draw, keeping the turn while
// more are owed, otherwise rotating with the stack reset to 1.
func AdvanceTurn(currentID string, players []*Player, stack int, ev TurnEvent) (nextID string, nextStack int) {
	switch ev {
	case TurnAttack:
		return NextAlivePlayer(currentID, players, 1), 2
	case TurnSkip, TurnPass:
		if stack > 1 {
			return currentID, stack - 1
		}
		return NextAlivePlayer(currentID, players, 1), 1
	}
	return currentID, 1
}
