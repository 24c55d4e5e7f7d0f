package gateway

import (
	"sync"

	"github.com/agentgateway/gateway/internal/protocol"
	"github.com/agentgateway/gateway/internal/transport"
)

// secretsResultType maps each client-initiated secrets_* frame type to
// its gateway->client result counterpart (spec.md §4.7's "secrets-result
// counterparts").
var secretsResultType = map[string]string{
	protocol.TypeSecretsList:             protocol.TypeSecretsListResult,
	protocol.TypeSecretsStore:            protocol.TypeSecretsStoreResult,
	protocol.TypeSecretsGet:              protocol.TypeSecretsGetResult,
	protocol.TypeSecretsPeek:             protocol.TypeSecretsPeekResult,
	protocol.TypeSecretsSetPolicy:        protocol.TypeSecretsSetPolicyResult,
	protocol.TypeSecretsSetDisabled:      protocol.TypeSecretsSetDisabledResult,
	protocol.TypeSecretsDeleteCredential: protocol.TypeSecretsDeleteCredentialResult,
	protocol.TypeSecretsSetupTOTP:        protocol.TypeSecretsSetupTOTPResult,
	protocol.TypeSecretsVerifyTOTP:       protocol.TypeSecretsVerifyTOTPResult,
	protocol.TypeSecretsRemoveTOTP:       protocol.TypeSecretsRemoveTOTPResult,
}

// connEmitter wraps a transport.Conn and rewrites the ToolResultFrame of
// any call the connection handler itself issued (a secrets_* frame the
// client sent directly on the control plane) into the matching
// secrets_*_result frame. Tool calls the model issues mid-turn are
// untouched and still surface as an ordinary ToolResultFrame, since
// those are not in the pending set.
type connEmitter struct {
	conn *transport.Conn

	mu      sync.Mutex
	pending map[string]string // call ID -> originating frame type
}

func newConnEmitter(conn *transport.Conn) *connEmitter {
	return &connEmitter{conn: conn, pending: map[string]string{}}
}

// trackControlCall records that id belongs to a control-plane secrets_*
// request of frameType, so the next ToolResultFrame bearing that id is
// translated instead of passed through.
func (e *connEmitter) trackControlCall(id, frameType string) {
	e.mu.Lock()
	e.pending[id] = frameType
	e.mu.Unlock()
}

func (e *connEmitter) Emit(frame any) error {
	if tr, ok := frame.(protocol.ToolResultFrame); ok {
		e.mu.Lock()
		frameType, tracked := e.pending[tr.ID]
		if tracked {
			delete(e.pending, tr.ID)
		}
		e.mu.Unlock()
		if tracked {
			resultType := secretsResultType[frameType]
			return e.conn.Emit(protocol.SecretsResultFrame{Type: resultType, Result: tr.Result, IsError: tr.IsError})
		}
	}
	return e.conn.Emit(frame)
}
