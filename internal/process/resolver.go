package process

// PIDResolver maps a flow's credential token to the owning process ID.
// It is provided by the host that intercepts the flows.
type PIDResolver interface {
	ResolvePID(token []byte) (uint32, bool)
}

// PIDResolverFunc adapts a function to PIDResolver.
type PIDResolverFunc func(token []byte) (uint32, bool)

// ResolvePID calls f.
func (f PIDResolverFunc) ResolvePID(token []byte) (uint32, bool) { return f(token) }

// PathResolver maps a process ID to its executable path.
type PathResolver interface {
	GetExePath(pid uint32) (string, bool)
}

// Resolver turns a credential token into an executable path.
type Resolver struct {
	PIDs  PIDResolver
	Paths PathResolver
}

// NewResolver creates a resolver over the host's PID resolver and a path cache.
func NewResolver(pids PIDResolver, paths PathResolver) *Resolver {
	return &Resolver{PIDs: pids, Paths: paths}
}

// ResolvePath returns the executable path of the process behind token.
func (r *Resolver) ResolvePath(token []byte) (string, bool) {
	if r == nil || r.PIDs == nil || r.Paths == nil || len(token) == 0 {
		return "", false
	}
	pid, ok := r.PIDs.ResolvePID(token)
	if !ok || pid == 0 {
		return "", false
	}
	return r.Paths.GetExePath(pid)
}
