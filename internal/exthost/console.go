package exthost

// DebugConsole writes to the debug console of the main thread.
type DebugConsole struct {
	main MainThread
}

func (c *DebugConsole) Append(value string) {
	c.main.AppendDebugConsole(value)
}

func (c *DebugConsole) AppendLine(value string) {
	c.Append(value + "\n")
}

// ActiveDebugConsole returns the debug console.
func (s *Service) ActiveDebugConsole() *DebugConsole { return s.console }
