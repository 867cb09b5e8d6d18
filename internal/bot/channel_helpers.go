package bot

// tryEnqueue кладет элемент в буферизованный канал без блокировки.
// При переполнении считает метрику и возвращает false.
func tryEnqueue[T any](ch chan T, item T, bufferName string) bool {
	if ch == nil {
		return false
	}

	select {
	case ch <- item:
		return true
	default:
		RecordBufferOverflow(bufferName)
		return false
	}
}
