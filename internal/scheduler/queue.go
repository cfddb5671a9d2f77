package scheduler

// pendingQueue holds the two FCFS collections of not-yet-started tasks.
// Order within a class is strictly enqueue order; the interactive
// collection is always drained before the bulk one is considered.
// Guarded by the scheduler mutex.
type pendingQueue struct {
	interactive []TransferTask
	bulk        []TransferTask
}

// push appends a task to the tail of its class collection and returns
// the task's 1-based position within that collection.
func (q *pendingQueue) push(task TransferTask) int {
	if task.Priority == Interactive {
		q.interactive = append(q.interactive, task)
		return len(q.interactive)
	}
	q.bulk = append(q.bulk, task)
	return len(q.bulk)
}

// headInteractive reports whether interactive work is pending.
func (q *pendingQueue) headInteractive() bool {
	return len(q.interactive) > 0
}

// headBulk reports whether bulk work is pending.
func (q *pendingQueue) headBulk() bool {
	return len(q.bulk) > 0
}

// popInteractive removes and returns the head of the interactive collection.
func (q *pendingQueue) popInteractive() TransferTask {
	task := q.interactive[0]
	q.interactive = q.interactive[1:]
	return task
}

// popBulk removes and returns the head of the bulk collection.
func (q *pendingQueue) popBulk() TransferTask {
	task := q.bulk[0]
	q.bulk = q.bulk[1:]
	return task
}

// remove deletes a still-queued task by id. Returns the removed task
// and whether it was found.
func (q *pendingQueue) remove(id string) (TransferTask, bool) {
	for i, task := range q.interactive {
		if task.ID == id {
			q.interactive = append(q.interactive[:i], q.interactive[i+1:]...)
			return task, true
		}
	}
	for i, task := range q.bulk {
		if task.ID == id {
			q.bulk = append(q.bulk[:i], q.bulk[i+1:]...)
			return task, true
		}
	}
	return TransferTask{}, false
}

func (q *pendingQueue) lengths() (interactive, bulk int) {
	return len(q.interactive), len(q.bulk)
}
