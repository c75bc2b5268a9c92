// Package config loads the tool-level settings of the control CLI.
//
// Settings come, in increasing precedence, from built-in defaults, an
// optional YAML config file, CONTROL_* environment variables and command
// line flags. Script-level settings such as the target host live in the
// script document, not here.
package config
