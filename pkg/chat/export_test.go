package chat

// SetDeleteThreadFn swaps the thread delete function and returns a
// restore function.
func SetDeleteThreadFn(fn func(owner, threadID string) error) func() {
	old := deleteThreadFn
	deleteThreadFn = fn
	return func() { deleteThreadFn = old }
}
