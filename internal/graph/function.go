package graph

// Function is the collaborator view of a model, a loss or an evaluation
// criterion: a DAG with an ordered set of declared inputs.
type Function interface {
	// Name is a human-readable identifier, used in logs and errors.
	Name() string

	// Arguments returns the declared input variables in definition order.
	// Positional minibatch data is matched against this order.
	Arguments() []*Variable

	// Outputs returns the variables the function produces.
	Outputs() []*Variable

	// Parameters returns every trainable parameter reachable from the function.
	Parameters() []*Variable
}

// Composite is a plain Function description for engines that resolve the
// computation by other means (e.g. by name).
type Composite struct {
	name    string
	args    []*Variable
	outputs []*Variable
	params  []*Variable
}

// NewFunction builds a Composite from its parts.
func NewFunction(name string, args, outputs, params []*Variable) *Composite {
	return &Composite{name: name, args: args, outputs: outputs, params: params}
}

// Name implements Function.
func (c *Composite) Name() string { return c.name }

// Arguments implements Function.
func (c *Composite) Arguments() []*Variable { return c.args }

// Outputs implements Function.
func (c *Composite) Outputs() []*Variable { return c.outputs }

// Parameters implements Function.
func (c *Composite) Parameters() []*Variable { return c.params }

// MergeArguments returns the ordered union of the arguments of fns: the first
// function's arguments in order, followed by arguments of later functions not
// seen yet.
func MergeArguments(fns ...Function) []*Variable {
	seen := make(map[*Variable]bool)
	var merged []*Variable
	for _, fn := range fns {
		if fn == nil {
			continue
		}
		for _, arg := range fn.Arguments() {
			if seen[arg] {
				continue
			}
			seen[arg] = true
			merged = append(merged, arg)
		}
	}
	return merged
}

// MergeParameters is MergeArguments for parameters.
func MergeParameters(fns ...Function) []*Variable {
	seen := make(map[*Variable]bool)
	var merged []*Variable
	for _, fn := range fns {
		if fn == nil {
			continue
		}
		for _, p := range fn.Parameters() {
			if seen[p] {
				continue
			}
			seen[p] = true
			merged = append(merged, p)
		}
	}
	return merged
}

// Find returns the first variable matching key by uid or name.
func Find(vars []*Variable, key string) (*Variable, bool) {
	for _, v := range vars {
		if v.UID() == key {
			return v, true
		}
	}
	for _, v := range vars {
		if v.Matches(key) {
			return v, true
		}
	}
	return nil, false
}
