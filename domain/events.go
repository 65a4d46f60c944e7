package domain

// Event types published on the store bus after a state change took effect.
const (
	TaskCreated       = "task-created"
	TaskUpdated       = "task-updated"
	TaskCompleted     = "task-completed"
	TaskReopened      = "task-reopened"
	TaskDeleted       = "task-deleted"
	TaskOverdue       = "task-overdue"
	CategoriesChanged = "categories-changed"
	ProfileSwitched   = "profile-switched"
)

// Event is the typed notification consumers subscribe to. Task and
// Category are copies; mutating them has no effect on the store.
type Event struct {
	Type     string
	Task     *Task
	Category *Category
	Profile  string
}
