package session

// Notifier is the side channel the store reports to. Calls are fire-and-forget
// and must not block.
type Notifier interface {
	Error(msg string)
	Info(msg string)
}

type nopNotifier struct{}

func (nopNotifier) Error(string) {}
func (nopNotifier) Info(string)  {}

// NotifierFunc adapts a single function to Notifier. isError tells the two
// kinds apart.
type NotifierFunc func(msg string, isError bool)

func (f NotifierFunc) Error(msg string) { f(msg, true) }
func (f NotifierFunc) Info(msg string)  { f(msg, false) }
