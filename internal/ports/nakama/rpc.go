package nakama

import (
	"github.com/heroiclabs/nakama-common/runtime"
)

// RegisterRPCs registers Nakama RPC endpoints.
func RegisterRPCs(initializer runtime.Initializer) error {
	if err := initializer.RegisterRpc(RpcQuickMatch, rpcQuickMatch); err != nil {
		return err
	}
	return initializer.RegisterRpc(RpcVoiceToken, RpcGetVoiceToken)
}
