package policy

import (
	"strings"

	"split-tunnel-proxy/internal/core"
	"split-tunnel-proxy/internal/flow"
)

// PathResolver maps a credential token to an executable path.
type PathResolver interface {
	ResolvePath(token []byte) (string, bool)
}

// IsIPv4Host reports whether host looks like IPv4. Any colon means IPv6,
// including IPv4-mapped literals such as "::ffff:1.2.3.4"; everything else
// (hostnames included) counts as IPv4.
func IsIPv4Host(host string) bool {
	return !strings.Contains(host, ":")
}

// IsIPv4 applies IsIPv4Host to the remote endpoint of f. Flows without a
// fixed remote endpoint are treated as IPv4.
func IsIPv4(f flow.Flow) bool {
	return IsIPv4Host(flow.RemoteHost(f))
}

// Evaluator is the admission policy evaluator.
type Evaluator struct {
	table    Table
	resolver PathResolver
	log      *core.Logger
}

// NewEvaluator creates an evaluator. resolver may be nil when the host cannot
// resolve credential tokens; a nil table defaults to AppTable.
func NewEvaluator(table Table, resolver PathResolver, log *core.Logger) *Evaluator {
	if table == nil {
		table = AppTable{}
	}
	if log == nil {
		log = core.Discard()
	}
	return &Evaluator{table: table, resolver: resolver, log: log}
}

// Descriptor returns the signing identifier of f, or the executable path of
// its process when the identifier is empty. Returns "" when neither is known.
func (e *Evaluator) Descriptor(f flow.Flow) string {
	if id := f.SigningIdentifier(); id != "" {
		return id
	}
	token := f.CredentialToken()
	if len(token) == 0 {
		e.log.Warnf("Policy", "Credential token is empty")
		return ""
	}
	if e.resolver == nil {
		return ""
	}
	path, ok := e.resolver.ResolvePath(token)
	if !ok {
		e.log.Warnf("Policy", "Could not resolve an executable path from the credential token")
		return ""
	}
	return path
}

// Decision is the outcome of admission evaluation.
type Decision struct {
	Policy     Policy
	Mode       Mode
	Descriptor string
}

// Decide evaluates f under state. A vpn-only flow that is not IPv4 is always
// blocked, since only IPv4 is forwarded and ignoring it would let it leave
// through the default route.
func (e *Evaluator) Decide(f flow.Flow, state core.VpnState) Decision {
	descriptor := e.Descriptor(f)
	if descriptor == "" {
		return Decision{Policy: Ignore, Mode: Unspecified}
	}

	policy, mode := e.table.Lookup(descriptor, state)
	if mode == VpnOnly && !IsIPv4(f) {
		policy = Block
	}
	return Decision{Policy: policy, Mode: mode, Descriptor: descriptor}
}

// Evaluate returns the policy and mode for f under state.
func (e *Evaluator) Evaluate(f flow.Flow, state core.VpnState) (Policy, Mode) {
	d := e.Decide(f, state)
	return d.Policy, d.Mode
}

// Mode returns only the mode of f.
func (e *Evaluator) Mode(f flow.Flow, state core.VpnState) Mode {
	descriptor := e.Descriptor(f)
	if descriptor == "" {
		return Unspecified
	}
	_, mode := e.table.Lookup(descriptor, state)
	return mode
}
