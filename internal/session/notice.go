package session

// NoticeClass is the message class a user-facing notice is emitted with.
// Presentation (toast, banner) is the UI's concern.
type NoticeClass string

const (
	NoticeInfo    NoticeClass = "info"
	NoticeError   NoticeClass = "error"
	NoticeSuccess NoticeClass = "success"
)

// Notifier receives user-facing notices from the engine.
type Notifier interface {
	Notify(class NoticeClass, message string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(class NoticeClass, message string)

func (f NotifierFunc) Notify(class NoticeClass, message string) { f(class, message) }

// NopNotifier discards notices.
var NopNotifier = NotifierFunc(func(NoticeClass, string) {})
