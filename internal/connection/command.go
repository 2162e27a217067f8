package connection

// Command is a request a caller submits to the runtime. The set of commands
// is closed: only types in this package implement it.
type Command interface {
	isCommand()
	commandName() string
}

// Shutdown stops the runtime and tears down the agent.
type Shutdown struct{}

// NewSession creates an ACP session rooted at Cwd.
type NewSession struct {
	Cwd string
}

// Prompt sends Text to the active session and waits for the turn to end.
type Prompt struct {
	Text string
}

// Cancel asks the agent to stop the active session's turn.
type Cancel struct{}

func (Shutdown) isCommand()   {}
func (NewSession) isCommand() {}
func (Prompt) isCommand()     {}
func (Cancel) isCommand()     {}

func (Shutdown) commandName() string   { return "shutdown" }
func (NewSession) commandName() string { return "new_session" }
func (Prompt) commandName() string     { return "prompt" }
func (Cancel) commandName() string     { return "cancel" }

// Reply is the single answer to a Command. Err is nil on success.
type Reply struct {
	Err        error
	SessionID  string
	StopReason string
}

// OK reports whether the command succeeded.
func (r Reply) OK() bool { return r.Err == nil }

type request struct {
	cmd   Command
	reply chan Reply
}

func newRequest(cmd Command) request {
	return request{cmd: cmd, reply: make(chan Reply, 1)}
}

// respond delivers the reply. The channel has room for exactly one value,
// so this never blocks even when the caller has stopped waiting.
func (r request) respond(reply Reply) {
	select {
	case r.reply <- reply:
	default:
	}
}
