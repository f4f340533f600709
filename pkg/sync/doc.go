/*
The sync package implements aethersync's mirroring engine. It watches a source
directory tree and copies every regular file that's created or modified into
a target directory.

The engine has three parts:
1) The Controller -- Starts and stops sync sessions. At most one session is
   active at a time.
2) The relay -- An unbounded FIFO queue between the filesystem watcher and the
   worker. The watcher only ever appends to it, so slow copies never stall
   the delivery of filesystem notifications.
3) The worker -- Drains the relay and copies files into the target directory.
   It's the only goroutine that writes to the target.

The sync only deals with file contents. Directories aren't created in the
target, files are copied under their base name, and removals aren't
propagated. Failing to copy a file is logged and doesn't affect the copies of
other files.
*/
package sync
