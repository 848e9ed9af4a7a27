// Package ui holds the terminal output helpers used by the CLI commands.
package ui

// Icons prefix user-facing status lines.
const (
	IconTool    = "🔧"
	IconSearch  = "🔍"
	IconSuccess = "✅"
	IconWarning = "⚠️ "
	IconError   = "❌"
	IconRocket  = "🚀"
	IconPackage = "📦"
	IconWatch   = "👀"
	IconSkip    = "⏭️ "
	IconTrash   = "🗑️ "
)
