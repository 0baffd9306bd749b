package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/heroiclabs/nakama-common/runtime"
)

// QuickMatchResponse tells the client which match to join and whether it was
// freshly created.
type QuickMatchResponse struct {
	MatchID string `json:"match_id"`
	IsNew   bool   `json:"is_new"`
}

// rpcQuickMatch joins the caller to an open lobby, creating one when none
// has a free seat. Seat assignment itself happens in MatchJoin.
func rpcQuickMatch(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	query := fmt.Sprintf("+label.%s:>=1 +label.game:kaboom +label.phase:lobby", MatchLabelKey_OpenSeats)
	minSize, maxSize := 1, 4

	matches, err := nk.MatchList(ctx, 10, true, "", &minSize, &maxSize, query)
	if err != nil {
		logger.Error("rpcQuickMatch: Match listing failed: %v", err)
		return "", err
	}

	if len(matches) > 0 {
		return marshalQuickMatch(matches[0].MatchId, false)
	}

	matchID, err := nk.MatchCreate(ctx, MatchNameKaboom, map[string]interface{}{})
	if err != nil {
		logger.Error("rpcQuickMatch: Match creation failed: %v", err)
		return "", err
	}
	return marshalQuickMatch(matchID, true)
}

func marshalQuickMatch(matchID string, isNew bool) (string, error) {
	b, err := json.Marshal(QuickMatchResponse{MatchID: matchID, IsNew: isNew})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
