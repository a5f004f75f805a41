// Package fs abstracts the file operations LocalStore performs, so tests
// can inject write, sync and rename failures with FaultyFS.
//
// Production code uses Default:
//
//	f, err := fs.Default.Create(tmp)
//
// Tests wrap it:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("snapshot-", fs.Fault{FailOnSync: true})
//
// Local file operations are not interruptible at the syscall level, so the
// interfaces take no context.
package fs
