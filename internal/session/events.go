package session

// FilteredPrompt is a prompt the service refused to use.
type FilteredPrompt struct {
	Text   string
	Reason string
}

// Listener observes a Manager. Methods are called from the manager's
// goroutine, in order, and must not block for long.
type Listener interface {
	StateChanged(state State)
	ErrorOccurred(err error)
	PromptFiltered(p FilteredPrompt)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OnStateChanged   func(State)
	OnError          func(error)
	OnPromptFiltered func(FilteredPrompt)
}

func (f ListenerFuncs) StateChanged(s State) {
	if f.OnStateChanged != nil {
		f.OnStateChanged(s)
	}
}

func (f ListenerFuncs) ErrorOccurred(err error) {
	if f.OnError != nil {
		f.OnError(err)
	}
}

func (f ListenerFuncs) PromptFiltered(p FilteredPrompt) {
	if f.OnPromptFiltered != nil {
		f.OnPromptFiltered(p)
	}
}
