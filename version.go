// Package shellout runs child processes to completion and captures their
// output, with a CLI and an MCP server on top.
package shellout

// Version is the released version of shellout.
const Version = "0.3.0"
