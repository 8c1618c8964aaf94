package celery

import (
	"github.com/google/uuid"

	"github.com/larsen-farm/plugintools/pkg/lsos"
)

// KindRPCRequest is the envelope kind.
const KindRPCRequest = "rpc_request"

// legacyKinds predate RPC support and are sent bare to devices older than
// 7.0.1.
var legacyKinds = map[string]bool{
	"read_pin":        true,
	"write_pin":       true,
	"set_pin_io_mode": true,
	"update_plugin":   true,
}

// NeedsEnvelope reports whether cmd must be wrapped for a device running
// version.
func NeedsEnvelope(cmd Command, version lsos.Version) bool {
	if cmd.Kind == KindRPCRequest {
		return false
	}
	if legacyKinds[cmd.Kind] && !version.AtLeast(7, 0, 1) {
		return false
	}
	return true
}

// Wrap places cmd in an rpc_request envelope labelled rpcID, or a fresh UUID
// when rpcID is empty. Envelopes and legacy kinds on old devices are
// returned unchanged.
func Wrap(cmd Command, rpcID string, version lsos.Version) Command {
	if !NeedsEnvelope(cmd, version) {
		return cmd
	}
	return Envelope(cmd, rpcID)
}

// Envelope wraps cmd unconditionally.
func Envelope(cmd Command, rpcID string) Command {
	if rpcID == "" {
		rpcID = uuid.NewString()
	}
	return Assemble(KindRPCRequest, map[string]any{"label": rpcID}, cmd)
}
