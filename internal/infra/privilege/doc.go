// Package privilege confines a server process: it resolves the account to
// run as, jails the process into the document root with chroot, and drops
// root privileges.
//
// Accounts are resolved before the jail is entered, since the account
// databases under /etc are not visible afterwards. Group privileges are
// dropped before user privileges; a process that has given up root can no
// longer change its groups.
package privilege
