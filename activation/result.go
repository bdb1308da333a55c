package activation

// LoadResult is the outcome of a module load.
// A nil Err means the bundle was fetched and executed.
type LoadResult struct {
	Module string
	Err    error
	// Initialized is set when the bundle defined its initializer
	// and the initializer was invoked.
	Initialized bool
}

// Success returns a successful result for module.
func Success(module string, initialized bool) LoadResult {
	return LoadResult{Module: module, Initialized: initialized}
}

// Failure returns a failed result for module.
func Failure(module string, err error) LoadResult {
	return LoadResult{Module: module, Err: err}
}

// OK reports whether the load succeeded.
func (r LoadResult) OK() bool {
	return r.Err == nil
}
