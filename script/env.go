package script

// EnumType is a declared enum type: a name and its ordered variants.
// Variants with a non-zero arity carry a payload and are constructed by
// calling the variant as a function.
type EnumType struct {
	Name     string
	Variants []EnumVariant
}

// EnumVariant is one variant of an enum type.
type EnumVariant struct {
	Name  string
	Arity int
}

// Variant returns the variant with the given name, if declared.
func (t *EnumType) Variant(name string) (EnumVariant, bool) {
	for _, v := range t.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return EnumVariant{}, false
}

// Env is a stack of lexical scopes mapping names to values. The stack is
// never empty: the global scope cannot be popped. Lookups walk
// innermost-to-outermost. No operation fails; absence is reported through
// the boolean result and translated into an error by the caller.
type Env struct {
	scopes []map[string]Value
	enums  map[string]*EnumType
}

// NewEnv creates an environment holding only the global scope.
func NewEnv() *Env {
	return &Env{
		scopes: []map[string]Value{make(map[string]Value)},
		enums:  make(map[string]*EnumType),
	}
}

// Define binds a name in the innermost scope, shadowing any outer binding.
func (e *Env) Define(name string, v Value) {
	e.scopes[len(e.scopes)-1][name] = v
}

// Get looks up a name, walking scopes innermost-to-outermost.
func (e *Env) Get(name string) (Value, bool) {
	for i := len(e.scopes) - 1; i >= 0; i-- {
		if v, ok := e.scopes[i][name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Set mutates the nearest scope already holding the name. It reports
// false when the name is not declared in any scope.
func (e *Env) Set(name string, v Value) bool {
	for i := len(e.scopes) - 1; i >= 0; i-- {
		if _, ok := e.scopes[i][name]; ok {
			e.scopes[i][name] = v
			return true
		}
	}
	return false
}

// Contains reports whether the name is declared in any scope.
func (e *Env) Contains(name string) bool {
	_, ok := e.Get(name)
	return ok
}

// Push opens a fresh child scope.
func (e *Env) Push() {
	e.scopes = append(e.scopes, make(map[string]Value))
}

// Pop closes the innermost scope. Popping the global scope is a no-op.
func (e *Env) Pop() {
	if len(e.scopes) > 1 {
		e.scopes = e.scopes[:len(e.scopes)-1]
	}
}

// Depth returns the current number of scopes.
func (e *Env) Depth() int {
	return len(e.scopes)
}

// RegisterEnum records an enum type declaration, keyed by type name.
func (e *Env) RegisterEnum(t *EnumType) {
	e.enums[t.Name] = t
}

// Enum looks up a registered enum type by name.
func (e *Env) Enum(name string) (*EnumType, bool) {
	t, ok := e.enums[name]
	return t, ok
}
