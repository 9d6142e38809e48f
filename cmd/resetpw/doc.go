// Command resetpw is an operator tool for account recovery. It resets
// a user's password directly in the database (revoking their sessions)
// and can list the accounts the database knows about. It must run on
// the same host as the server with DATABASE_DIR pointing at the same
// directory.
package main
