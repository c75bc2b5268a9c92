// Package engine runs an action script against one host.
//
// A run moves through fixed stages:
//
//  1. Load - resolve the provider and any prompted credentials
//  2. Connect - open the remote session, retrying connection failures
//  3. Validate - compare the host's distro against the script's constraint
//  4. Execute - dispatch each action in order, stopping at the first failure
//
// Each stage maps to its own exit code through RunError. Runs are recorded
// in an optional journal and instrumented with metrics and trace spans.
package engine
