// Package generation launches server generations as child processes and
// gives the child its inherited state.
//
// The manager re-executes its own binary with the hidden Command
// subcommand. Two descriptors are inherited:
//
//	fd 3  read end of a pipe carrying the YAML-encoded configuration record
//	fd 4  write end of the restart semaphore
//
// The child reads its record with Inherit and posts the semaphore on a
// planned restart.
package generation
