package hellotrace

import "sync"

// ScopeManager tracks the active span for code that does not pass a
// context.Context around.
type ScopeManager interface {
	// Activate makes span the active span until the returned scope is closed.
	Activate(span *ActiveSpan, finishOnClose bool) *Scope
	// Active returns the active span, or nil.
	Active() *ActiveSpan
}

// Scope is returned by ScopeManager.Activate. Close it exactly where the
// activation should end, usually with defer.
type Scope struct {
	span          *ActiveSpan
	release       func(*Scope)
	once          sync.Once
	finishOnClose bool
}

// NewScope creates a scope that calls release once on Close. ScopeManager
// implementations use it to build their scopes.
func NewScope(span *ActiveSpan, finishOnClose bool, release func(*Scope)) *Scope {
	return &Scope{span: span, finishOnClose: finishOnClose, release: release}
}

// Span returns the span activated by this scope.
func (s *Scope) Span() *ActiveSpan {
	return s.span
}

// Close ends the activation, finishing the span if requested.
// Calling Close more than once is a no-op.
func (s *Scope) Close() {
	s.once.Do(func() {
		if s.release != nil {
			s.release(s)
		}
		if s.finishOnClose && s.span != nil {
			s.span.Finish()
		}
	})
}

// StackScopeManager keeps active spans on a stack. It serves synchronous
// call chains: concurrent goroutines sharing one StackScopeManager would
// see each other's spans, so they should pass context.Context instead.
//
// Closing a scope removes it from the stack wherever it sits, so scopes
// closed out of order still restore the span that was active before the
// outermost of them was opened.
type StackScopeManager struct {
	stack []*Scope
	mu    sync.Mutex
}

// NewStackScopeManager creates an empty stack scope manager.
func NewStackScopeManager() *StackScopeManager {
	return &StackScopeManager{}
}

// Activate pushes span onto the stack.
func (m *StackScopeManager) Activate(span *ActiveSpan, finishOnClose bool) *Scope {
	scope := NewScope(span, finishOnClose, m.remove)

	m.mu.Lock()
	m.stack = append(m.stack, scope)
	m.mu.Unlock()

	return scope
}

// Active returns the span on top of the stack.
func (m *StackScopeManager) Active() *ActiveSpan {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.stack) == 0 {
		return nil
	}
	return m.stack[len(m.stack)-1].span
}

// Depth returns the number of open scopes.
func (m *StackScopeManager) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stack)
}

func (m *StackScopeManager) remove(scope *Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Preserve order
	for i := len(m.stack) - 1; i >= 0; i-- {
		if m.stack[i] == scope {
			copy(m.stack[i:], m.stack[i+1:])
			m.stack[len(m.stack)-1] = nil
			m.stack = m.stack[:len(m.stack)-1]
			return
		}
	}
}
