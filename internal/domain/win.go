package domain

// EvaluateWin checks the terminal condition after an elimination or roster
// change. With exactly one alive player the game finishes with that winner;
// with zero (possible only under external removal) it finishes with no
// winner. Returns true when the status flipped.
func EvaluateWin(g *Game) bool {
	if g.Status != StatusPlaying {
		return false
	}
	switch g.AliveCount() {
	case 0:
		g.Status = StatusFinished
		g.WinnerID = ""
		return true
	case 1:
		for _, p := range g.Players {
			if p.Alive {
				g.WinnerID = p.ID
				break
			}
		}
		g.Status = StatusFinished
		return true
	}
	return false
}
