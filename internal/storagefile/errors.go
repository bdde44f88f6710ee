package storagefile

import "github.com/mrshabel/flashq"

func flashqFromIOError(err error, context string, write bool) *flashq.StorageError {
	return flashq.FromIOError(err, context, write)
}
