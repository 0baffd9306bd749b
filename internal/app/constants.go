package app

import "time"

// MinPlayersToStartGame is the minimum roster size required to start.
// Centralized so tests or local runs can adjust the rule in one place.
const MinPlayersToStartGame = 2

// DefaultNopeWindow is how long a played action card stays open to
// counters before it resolves on its own.
const DefaultNopeWindow = 3 * time.Second

// FutureCardCount is how many cards a see_future play reveals.
const FutureCardCount = 3
