package dashboard

import "time"

// pendingConfirm is an armed destructive action waiting for its second key
// press.
type pendingConfirm struct {
	key     string
	prompt  string
	expires time.Time
}

// confirmed reports whether the action identified by key was already armed
// and is still within the confirmation window. Otherwise it arms key, replacing
// any other pending confirmation, and shows prompt.
func (m *Model) confirmed(key, prompt string) bool {
	now := m.now()
	if m.confirm != nil && m.confirm.key == key && !now.After(m.confirm.expires) {
		m.confirm = nil
		return true
	}
	m.confirm = &pendingConfirm{key: key, prompt: prompt, expires: now.Add(m.confirmTimeout)}
	return false
}

// ConfirmPrompt returns the prompt of the pending confirmation, if any.
func (m Model) ConfirmPrompt() string {
	if m.confirm == nil {
		return ""
	}
	return m.confirm.prompt
}
