package schema

// Param describes one ordered parameter of a Procedure.
type Param struct {
	Name string
	Type FieldType
	EnumName string
	Optional bool
	Array bool
}

// Procedure describes a user-defined stored operation invoked through
// `client.$procs.<name>(input?)`. Params is ordered because the
// payload the caller supplies (`{args: {...}}`) is validated by name, but the
// handler signature documented to users lists parameters positionally.
type Procedure struct {
	Name string
	Params []Param
	ReturnType FieldType
	// Mutation marks a procedure that performs writes (participates in the
	// same transaction-gating rules as a regular mutation operation).
	Mutation bool
}

// AllOptional reports whether every parameter is optional, in which case the
// `{args: ...}` payload may be omitted entirely.
func (p *Procedure) AllOptional() bool {
	for _, param := range p.Params {
		if !param.Optional {
			return false
		}
	}
	return true
}

// Param looks up a parameter by name.
func (p *Procedure) Param(name string) (Param, bool) {
	for _, param := range p.Params {
		if param.Name == name {
			return param, true
		}
	}
	return Param{}, false
}
