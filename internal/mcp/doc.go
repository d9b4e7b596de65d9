// Package mcp exposes daemon operations as Model Context Protocol tools.
//
// Tools are kept in a registry so they can be invoked directly, which is how
// the CLI and tests drive them, and are registered on an official MCP SDK
// server when served over a transport such as stdio.
package mcp
