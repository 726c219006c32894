// turn/queue.go
package turn

// Queue is the round-robin order of participant ids. The head is the only
// participant allowed to submit an action.
//
// Queue is not safe for concurrent use; the room loop owns it.
type Queue struct {
	ids []string
}

func NewQueue() *Queue {
	return &Queue{}
}

// Join appends id to the tail. It reports false if id was already queued.
func (q *Queue) Join(id string) bool {
	if q.Contains(id) {
		return false
	}
	q.ids = append(q.ids, id)
	return true
}

// Leave removes id wherever it sits and reports whether it was the head.
// The next participant, if any, becomes the head immediately.
func (q *Queue) Leave(id string) (wasHead bool) {
	for i, v := range q.ids {
		if v == id {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			return i == 0
		}
	}
	return false
}

// Current returns the turn-holder.
func (q *Queue) Current() (string, bool) {
	if len(q.ids) == 0 {
		return "", false
	}
	return q.ids[0], true
}

// Rotate moves the head to the tail and returns the new head.
func (q *Queue) Rotate() (string, bool) {
	if len(q.ids) == 0 {
		return "", false
	}
	head := q.ids[0]
	copy(q.ids, q.ids[1:])
	q.ids[len(q.ids)-1] = head
	return q.ids[0], true
}

func (q *Queue) Contains(id string) bool {
	for _, v := range q.ids {
		if v == id {
			return true
		}
	}
	return false
}

// IDs returns the queue order, head first.
func (q *Queue) IDs() []string {
	out := make([]string, len(q.ids))
	copy(out, q.ids)
	return out
}
